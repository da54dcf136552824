package chart

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestNewRenderer_Defaults(t *testing.T) {
	r := NewRenderer(0, -1)
	if r.Width != DefaultWidth || r.Height != DefaultHeight {
		t.Errorf("size = %dx%d, want %dx%d", r.Width, r.Height, DefaultWidth, DefaultHeight)
	}

	r = NewRenderer(640, 320)
	if r.Width != 640 || r.Height != 320 {
		t.Errorf("size = %dx%d, want 640x320", r.Width, r.Height)
	}
}

func TestRender_Kinds(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Kind
	}{
		{
			name: "bar",
			raw:  salesByState,
			want: KindBar,
		},
		{
			name: "grouped bar",
			raw: `{"type": "bar", "data": {"labels": ["Q1", "Q2"], "datasets": [
				{"label": "2023", "data": [5, 7]},
				{"label": "2024", "data": [6, 9]}
			]}}`,
			want: KindBar,
		},
		{
			name: "line",
			raw: `{"type": "line", "data": {"labels": ["Jan", "Feb", "Mar"], "datasets": [
				{"label": "Orders", "data": [3, 5, 4], "borderColor": "rgb(75, 192, 192)", "fill": true}
			]}}`,
			want: KindLine,
		},
		{
			name: "flat line",
			raw:  `{"type": "line", "data": {"labels": ["a", "b"], "datasets": [{"data": [2, 2]}]}, "options": {"scales": {"y": {"beginAtZero": false}}}}`,
			want: KindLine,
		},
		{
			name: "pie",
			raw: `{"type": "pie", "data": {"labels": ["North", "South", "East"], "datasets": [
				{"data": [30, 50, 20], "backgroundColor": ["#ff6384", "#36a2eb", "#ffce56"]}
			]}}`,
			want: KindPie,
		},
	}

	r := NewRenderer(DefaultWidth, DefaultHeight)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := r.Render([]byte(tt.raw))
			if view.Kind != tt.want {
				t.Fatalf("kind = %s, want %s (diagnostic %q)", view.Kind, tt.want, view.Diagnostic)
			}
			if view.Diagnostic != "" {
				t.Errorf("diagnostic = %q, want empty", view.Diagnostic)
			}
			if !bytes.Contains(view.SVG, []byte("<svg")) {
				t.Errorf("output is not SVG: %.80s", view.SVG)
			}
		})
	}
}

func TestRender_Title(t *testing.T) {
	view := NewRenderer(0, 0).Render([]byte(salesByState))
	if view.Title != "Total sales by state" {
		t.Errorf("title = %q", view.Title)
	}
}

func TestRender_Diagnostic(t *testing.T) {
	r := NewRenderer(0, 0)

	view := r.Render([]byte(`{"error": "boom"}`))
	if view.Kind != KindInvalid {
		t.Fatalf("kind = %s, want invalid", view.Kind)
	}
	if !strings.Contains(view.Diagnostic, "boom") {
		t.Errorf("diagnostic = %q, want it to mention boom", view.Diagnostic)
	}
	if len(view.SVG) != 0 || view.DataURI() != "" {
		t.Error("diagnostic views must not carry an image")
	}
}

func TestRender_PieWithoutPositiveValues(t *testing.T) {
	view := NewRenderer(0, 0).Render([]byte(`{"type": "pie", "data": {"labels": ["a", "b"], "datasets": [{"data": [0, -3]}]}}`))
	if view.Kind != KindInvalid {
		t.Fatalf("kind = %s, want invalid", view.Kind)
	}
	if !strings.HasPrefix(view.Diagnostic, "Chart rendering failed: ") {
		t.Errorf("diagnostic = %q", view.Diagnostic)
	}
}

func TestRender_Nothing(t *testing.T) {
	view := NewRenderer(0, 0).Render(nil)
	if !view.Empty() {
		t.Errorf("view = %+v, want empty", view)
	}
	if view.Key != NoChartKey {
		t.Errorf("key = %q, want %q", view.Key, NoChartKey)
	}

	if !NewRenderer(0, 0).RenderSpec(nil).Empty() {
		t.Error("nil spec should render nothing")
	}
}

func TestRender_Idempotent(t *testing.T) {
	r := NewRenderer(0, 0)
	first := r.Render([]byte(salesByState))
	second := r.Render([]byte(salesByState))

	if first.Key != second.Key {
		t.Errorf("keys differ: %q vs %q", first.Key, second.Key)
	}
	if !bytes.Equal(first.SVG, second.SVG) {
		t.Error("rendering the same specification twice produced different images")
	}
}

func TestView_DataURI(t *testing.T) {
	view := &View{SVG: []byte("<svg></svg>")}
	uri := view.DataURI()

	const prefix = "data:image/svg+xml;base64,"
	if !strings.HasPrefix(uri, prefix) {
		t.Fatalf("uri = %q", uri)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, prefix))
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if string(decoded) != "<svg></svg>" {
		t.Errorf("decoded = %q", decoded)
	}
}

func TestValueRange(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		fromZero bool
	}{
		{"empty", nil, true},
		{"flat", []float64{3, 3}, false},
		{"zero", []float64{0, 0}, true},
		{"negative", []float64{-5, 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valueRange(tt.values, tt.fromZero)
			if r.Max <= r.Min {
				t.Errorf("range [%v, %v] is degenerate", r.Min, r.Max)
			}
			for _, v := range tt.values {
				if v < r.Min || v > r.Max {
					t.Errorf("%v outside [%v, %v]", v, r.Min, r.Max)
				}
			}
		})
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in         string
		r, g, b, a uint8
		ok         bool
	}{
		{"#fff", 255, 255, 255, 255, true},
		{"#36A2EB", 54, 162, 235, 255, true},
		{"#36a2eb80", 54, 162, 235, 128, true},
		{"rgb(75, 192, 192)", 75, 192, 192, 255, true},
		{"rgba(255, 99, 132, 0.5)", 255, 99, 132, 127, true},
		{"rgba(0, 0, 0, 0.1)", 0, 0, 0, 25, true},
		{"blue", 0, 0, 255, 255, true},
		{" Red ", 255, 0, 0, 255, true},
		{"transparent", 255, 255, 255, 0, true},
		{"rebeccapurple", 0, 0, 0, 0, false},
		{"#12", 0, 0, 0, 0, false},
		{"#gggggg", 0, 0, 0, 0, false},
		{"rgb(1, 2)", 0, 0, 0, 0, false},
		{"rgba(1, 2, 3)", 0, 0, 0, 0, false},
		{"", 0, 0, 0, 0, false},
	}

	for _, tt := range tests {
		c, ok := parseColor(tt.in)
		if ok != tt.ok {
			t.Errorf("parseColor(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if c.R != tt.r || c.G != tt.g || c.B != tt.b || c.A != tt.a {
			t.Errorf("parseColor(%q) = %v, want {%d %d %d %d}", tt.in, c, tt.r, tt.g, tt.b, tt.a)
		}
	}
}

func TestPickColor(t *testing.T) {
	if got := pickColor(nil, 2, 2); got != paletteColor(2) {
		t.Errorf("no colors: got %v, want palette[2]", got)
	}
	if got := pickColor([]string{"#ff0000"}, 3, 3); got.R != 255 || got.G != 0 {
		t.Errorf("single color should apply to every index, got %v", got)
	}
	if got := pickColor([]string{"#ff0000", "#00ff00"}, 1, 0); got.G != 255 {
		t.Errorf("indexed color: got %v", got)
	}
	if got := pickColor([]string{"nope", "#00ff00"}, 0, 4); got != paletteColor(4) {
		t.Errorf("unparseable color should fall back, got %v", got)
	}
	if got := paletteColor(len(palette)); got != palette[0] {
		t.Errorf("palette should wrap, got %v", got)
	}
}

// svgText decodes the SVG and returns the contents of its <text> elements
func svgText(t *testing.T, svg []byte) []string {
	t.Helper()

	var texts []string
	var inText bool
	dec := xml.NewDecoder(bytes.NewReader(svg))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return texts
		}
		if err != nil {
			t.Fatalf("SVG is not well-formed: %v", err)
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			inText = tok.Name.Local == "text"
		case xml.EndElement:
			inText = false
		case xml.CharData:
			if inText {
				texts = append(texts, string(tok))
			}
		}
	}
}

func TestRender_EscapesText(t *testing.T) {
	const tmpl = `{
		"type": %q,
		"data": {
			"labels": ["R&D", "<5k", "Sales & Ops"],
			"datasets": [{"label": "Q1 <draft>", "data": [3, 5, 8]}]
		},
		"options": {
			"plugins": {"title": {"display": true, "text": "Profit & \"Loss\""}},
			"scales": {"y": {"title": {"display": true, "text": "k&k"}}}
		}
	}`

	for _, kind := range []string{"bar", "line", "pie"} {
		t.Run(kind, func(t *testing.T) {
			view := NewRenderer(0, 0).Render([]byte(fmt.Sprintf(tmpl, kind)))
			if view.Diagnostic != "" {
				t.Fatalf("unexpected diagnostic %q", view.Diagnostic)
			}

			texts := svgText(t, view.SVG)
			joined := strings.Join(texts, "|")
			for _, want := range []string{"R&D", "<5k", `Profit & "Loss"`} {
				if !strings.Contains(joined, want) {
					t.Errorf("text %q not drawn; got %q", want, joined)
				}
			}
		})
	}
}

func TestRender_EmptyAxes(t *testing.T) {
	for _, raw := range []string{
		`{"type": "bar", "data": {"labels": ["North", "South"]}}`,
		`{"type": "line", "data": {"labels": ["North", "South"], "datasets": []}}`,
	} {
		view := NewRenderer(0, 0).Render([]byte(raw))
		if view.Diagnostic != "" {
			t.Errorf("Render(%s) diagnostic = %q, want none", raw, view.Diagnostic)
			continue
		}
		texts := strings.Join(svgText(t, view.SVG), "|")
		if !strings.Contains(texts, "North") || !strings.Contains(texts, "South") {
			t.Errorf("Render(%s) did not label the axis: %q", raw, texts)
		}
	}

	view := NewRenderer(0, 0).Render([]byte(`{"type": "pie", "data": {"labels": ["a"]}}`))
	if view.Diagnostic != "Chart rendering failed: no positive values to plot" {
		t.Errorf("pie without datasets diagnostic = %q", view.Diagnostic)
	}
}

func TestRender_SingleLabelLine(t *testing.T) {
	view := NewRenderer(0, 0).Render([]byte(`{"type": "line", "data": {"labels": ["Q1"], "datasets": [{"label": "Sales", "data": [5]}]}}`))
	if view.Diagnostic != "" || view.Kind != KindLine {
		t.Fatalf("kind = %s, diagnostic = %q; want a line chart", view.Kind, view.Diagnostic)
	}
	if texts := strings.Join(svgText(t, view.SVG), "|"); !strings.Contains(texts, "Q1") {
		t.Errorf("label Q1 not drawn: %q", texts)
	}
}
