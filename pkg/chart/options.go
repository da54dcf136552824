package chart

// defaultTitle is used when the caller does not name the chart
const defaultTitle = "Chart"

// buildOptions returns the caller's options shallow-merged over the
// defaults, with "plugins" and "scales" merged one level deep. Pie charts
// never carry "scales". The caller's map is not modified.
func buildOptions(chartType string, caller map[string]interface{}) map[string]interface{} {
	caller = deepCopyMap(caller)
	pie := chartType == "pie"

	defaults := map[string]interface{}{
		"responsive":          true,
		"maintainAspectRatio": false,
		"plugins": map[string]interface{}{
			"legend": map[string]interface{}{
				"position": "top",
			},
			"title": map[string]interface{}{
				"display": true,
				"text":    or(lookup(caller, "plugins", "title", "text"), defaultTitle),
				"font": map[string]interface{}{
					"size":   16.0,
					"weight": "bold",
				},
			},
			"tooltip": map[string]interface{}{
				"backgroundColor": "rgba(0, 0, 0, 0.8)",
				"titleColor":      "#fff",
				"bodyColor":       "#fff",
				"borderColor":     "#ddd",
				"borderWidth":     1.0,
			},
		},
	}

	if !pie {
		defaults["scales"] = map[string]interface{}{
			"x": map[string]interface{}{
				"grid": map[string]interface{}{
					"display": false,
				},
				"title": map[string]interface{}{
					"display": or(lookup(caller, "scales", "x", "title", "display"), false),
					"text":    or(lookup(caller, "scales", "x", "title", "text"), ""),
				},
			},
			"y": map[string]interface{}{
				"beginAtZero": true,
				"grid": map[string]interface{}{
					"color": "rgba(0, 0, 0, 0.1)",
				},
				"title": map[string]interface{}{
					"display": or(lookup(caller, "scales", "y", "title", "display"), false),
					"text":    or(lookup(caller, "scales", "y", "title", "text"), ""),
				},
			},
		}
	}

	merged := make(map[string]interface{}, len(defaults)+len(caller))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range caller {
		merged[k] = v
	}

	merged["plugins"] = mergeLevel(defaults["plugins"], caller["plugins"])
	if pie {
		delete(merged, "scales")
	} else {
		merged["scales"] = mergeLevel(defaults["scales"], caller["scales"])
	}

	return merged
}

// mergeLevel copies base and overlays override's top-level keys
func mergeLevel(base, override interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	if b, ok := base.(map[string]interface{}); ok {
		for k, v := range b {
			out[k] = v
		}
	}
	if o, ok := override.(map[string]interface{}); ok {
		for k, v := range o {
			out[k] = v
		}
	}
	return out
}

// lookup walks nested maps, returning nil when any step is missing
func lookup(m map[string]interface{}, path ...string) interface{} {
	var cur interface{} = m
	for _, p := range path {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = obj[p]
	}
	return cur
}

// or returns v if it is truthy, otherwise fallback
func or(v, fallback interface{}) interface{} {
	if truthy(v) {
		return v
	}
	return fallback
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return t
	}
}
