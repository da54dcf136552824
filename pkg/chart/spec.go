// Package chart turns the backend's declarative chart specifications into
// images. Malformed input never fails: it degrades to a diagnostic.
package chart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the validated variant of a chart specification
type Kind int

const (
	// KindNone means there is nothing to render
	KindNone Kind = iota
	KindBar
	KindLine
	KindPie
	// KindInvalid carries a diagnostic instead of a chart
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindBar:
		return "bar"
	case KindLine:
		return "line"
	case KindPie:
		return "pie"
	case KindInvalid:
		return "invalid"
	default:
		return "none"
	}
}

// Diagnostic messages
const (
	msgGenerationFailed = "Chart generation failed: %s"
	msgInvalidFormat    = "Invalid chart specification format"
	msgMissingFields    = "Invalid chart specification: missing type or data"
	msgUnsupportedType  = "Unsupported chart type: %s"
	msgRenderFailed     = "Chart rendering failed: %v"
)

// NoChartKey is the digest key of an absent specification
const NoChartKey = "no-chart"

const keyPrefixLen = 50

// Spec is a chart specification after validation
type Spec struct {
	Kind Kind
	// Type is the type field as the backend sent it
	Type string
	// Key changes whenever the specification changes
	Key  string
	Data Data
	// Options are the caller's display options merged over the defaults
	Options    map[string]interface{}
	Diagnostic string
}

// Data holds the category labels and series of a chart
type Data struct {
	Labels   []string
	Datasets []Dataset
}

// Dataset is one series
type Dataset struct {
	Label            string
	Values           []float64
	BackgroundColors []string
	BorderColors     []string
	BorderWidth      float64
	Fill             bool
}

// Title returns the display title from the merged options
func (s *Spec) Title() string {
	title, _ := lookup(s.Options, "plugins", "title").(map[string]interface{})
	if title == nil {
		return ""
	}
	if display, ok := title["display"]; ok && !truthy(display) {
		return ""
	}
	return stringify(title["text"])
}

// Parse validates a raw chart specification. raw may be a JSON object, a
// JSON string holding an encoded object, null, or anything else.
func Parse(raw []byte) *Spec {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return &Spec{Kind: KindNone, Key: NoChartKey}
	}

	var value interface{}
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return invalid(digest(string(trimmed)), msgInvalidFormat)
	}

	if s, ok := value.(string); ok {
		return parseString(s)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		compact.Reset()
		compact.Write(trimmed)
	}

	return parseValue(value, digest(compact.String()))
}

func parseString(s string) *Spec {
	if s == "" {
		return &Spec{Kind: KindNone, Key: NoChartKey}
	}

	key := digest(s)

	var value interface{}
	if err := json.Unmarshal([]byte(s), &value); err != nil {
		return invalid(key, msgInvalidFormat)
	}

	return parseValue(value, key)
}

func parseValue(value interface{}, key string) *Spec {
	if !truthy(value) {
		return &Spec{Kind: KindNone, Key: NoChartKey}
	}

	obj, ok := value.(map[string]interface{})
	if !ok {
		return invalid(key, msgMissingFields)
	}

	if errValue, ok := obj["error"]; ok && truthy(errValue) {
		return invalid(key, fmt.Sprintf(msgGenerationFailed, stringify(errValue)))
	}

	if !truthy(obj["type"]) || !truthy(obj["data"]) {
		return invalid(key, msgMissingFields)
	}

	typeName := stringify(obj["type"])
	callerOptions, _ := obj["options"].(map[string]interface{})

	spec := &Spec{
		Type:    typeName,
		Key:     key,
		Options: buildOptions(strings.ToLower(typeName), callerOptions),
	}

	switch typeStr, _ := obj["type"].(string); strings.ToLower(typeStr) {
	case "bar":
		spec.Kind = KindBar
	case "line":
		spec.Kind = KindLine
	case "pie":
		spec.Kind = KindPie
	default:
		spec.Kind = KindInvalid
		spec.Diagnostic = fmt.Sprintf(msgUnsupportedType, typeName)
		return spec
	}

	data, err := parseData(obj["data"])
	if err != nil {
		spec.Kind = KindInvalid
		spec.Diagnostic = fmt.Sprintf(msgRenderFailed, err)
		return spec
	}
	spec.Data = data

	return spec
}

func invalid(key, diagnostic string) *Spec {
	return &Spec{Kind: KindInvalid, Key: key, Diagnostic: diagnostic}
}

func parseData(value interface{}) (Data, error) {
	obj, ok := value.(map[string]interface{})
	if !ok {
		return Data{}, fmt.Errorf("data must be an object")
	}

	var data Data

	if labels, ok := obj["labels"].([]interface{}); ok {
		data.Labels = make([]string, len(labels))
		for i, l := range labels {
			data.Labels[i] = stringify(l)
		}
	}

	rawSets, _ := obj["datasets"].([]interface{})
	for i, rs := range rawSets {
		set, ok := rs.(map[string]interface{})
		if !ok {
			return Data{}, fmt.Errorf("dataset %d must be an object", i)
		}

		values, ok := set["data"].([]interface{})
		if !ok {
			values, _ = set["values"].([]interface{})
		}

		ds := Dataset{
			Label:            stringify(set["label"]),
			Values:           make([]float64, len(values)),
			BackgroundColors: stringList(set["backgroundColor"]),
			BorderColors:     stringList(set["borderColor"]),
			Fill:             truthy(set["fill"]),
		}
		if bw, ok := set["borderWidth"].(float64); ok {
			ds.BorderWidth = bw
		}
		for j, v := range values {
			ds.Values[j] = number(v)
		}

		data.Datasets = append(data.Datasets, ds)
	}

	return data, nil
}

// digest builds the render key from the first characters of the
// specification's text
func digest(s string) string {
	runes := []rune(s)
	if len(runes) > keyPrefixLen {
		runes = runes[:keyPrefixLen]
	}
	return "chart-" + string(runes)
}

// truthy follows JSON-value truthiness: null, false, 0, NaN and "" are false
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0 && !math.IsNaN(t)
	case int:
		return t != 0
	default:
		return true
	}
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func stringList(v interface{}) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// number converts a JSON value to a float; non-numeric values count as 0
func number(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return 0
	}
}
