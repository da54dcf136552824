package chart

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html"
	"math"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Default canvas size
const (
	DefaultWidth  = 800
	DefaultHeight = 400
)

// View is the outcome of rendering one specification
type View struct {
	Key  string
	Kind Kind
	// Type is the specification's type as sent by the backend
	Type       string
	Title      string
	Diagnostic string
	SVG        []byte
	// Options are the merged display options the image was drawn with
	Options map[string]interface{}
}

// Empty reports whether there is nothing to show
func (v *View) Empty() bool {
	return v == nil || (v.Kind == KindNone && v.Diagnostic == "")
}

// DataURI returns the SVG as a data: URI suitable for an <img> src
func (v *View) DataURI() string {
	if v == nil || len(v.SVG) == 0 {
		return ""
	}
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString(v.SVG)
}

// Renderer draws chart specifications with go-chart
type Renderer struct {
	Width  int
	Height int
}

// NewRenderer creates a renderer with the given canvas size; non-positive
// values fall back to the defaults
func NewRenderer(width, height int) *Renderer {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &Renderer{Width: width, Height: height}
}

// Render parses and draws a raw specification
func (r *Renderer) Render(raw []byte) *View {
	return r.RenderSpec(Parse(raw))
}

// RenderSpec draws a parsed specification. It never panics.
func (r *Renderer) RenderSpec(spec *Spec) (view *View) {
	if spec == nil {
		return &View{Kind: KindNone, Key: NoChartKey}
	}

	view = &View{
		Key:        spec.Key,
		Kind:       spec.Kind,
		Type:       spec.Type,
		Diagnostic: spec.Diagnostic,
		Options:    spec.Options,
	}

	if spec.Kind == KindNone || spec.Kind == KindInvalid {
		return view
	}

	view.Title = spec.Title()

	defer func() {
		if rec := recover(); rec != nil {
			view.SVG = nil
			view.Kind = KindInvalid
			view.Diagnostic = fmt.Sprintf(msgRenderFailed, rec)
		}
	}()

	var buf bytes.Buffer
	var err error
	switch spec.Kind {
	case KindBar:
		err = r.drawBar(spec, &buf)
	case KindLine:
		err = r.drawLine(spec, &buf)
	case KindPie:
		err = r.drawPie(spec, &buf)
	}

	if err != nil {
		view.Kind = KindInvalid
		view.Diagnostic = fmt.Sprintf(msgRenderFailed, err)
		return view
	}

	view.SVG = buf.Bytes()
	return view
}

// svg is go-chart's SVG renderer with text escaped on output; go-chart
// writes <text> bodies verbatim
func svg(width, height int) (gochart.Renderer, error) {
	r, err := gochart.SVG(width, height)
	if err != nil {
		return nil, err
	}
	return escapedText{r}, nil
}

// escapedText measures the raw text and writes it escaped
type escapedText struct {
	gochart.Renderer
}

func (e escapedText) Text(body string, x, y int) {
	e.Renderer.Text(html.EscapeString(body), x, y)
}

func (r *Renderer) background() gochart.Style {
	return gochart.Style{Padding: gochart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20}}
}

func (r *Renderer) titleStyle(spec *Spec) gochart.Style {
	style := gochart.Style{Hidden: spec.Title() == ""}
	if size, ok := lookup(spec.Options, "plugins", "title", "font", "size").(float64); ok && size > 0 {
		style.FontSize = size
	}
	return style
}

func (r *Renderer) drawBar(spec *Spec, buf *bytes.Buffer) error {
	if len(spec.Data.Datasets) == 0 {
		return r.drawAxes(spec, buf)
	}

	multi := len(spec.Data.Datasets) > 1

	var bars []gochart.Value
	for i, label := range categoryLabels(spec.Data) {
		for j, ds := range spec.Data.Datasets {
			if i >= len(ds.Values) {
				continue
			}
			name := label
			if multi && ds.Label != "" {
				name = fmt.Sprintf("%s · %s", label, ds.Label)
			}
			fallback := i
			if multi {
				fallback = j
			}
			fill := pickColor(ds.BackgroundColors, i, fallback)
			bars = append(bars, gochart.Value{
				Label: name,
				Value: ds.Values[i],
				Style: gochart.Style{
					FillColor:   fill,
					StrokeColor: pickColor(ds.BorderColors, i, fallback),
					StrokeWidth: math.Max(ds.BorderWidth, 1),
				},
			})
		}
	}

	if len(bars) == 0 {
		return fmt.Errorf("no values to plot")
	}

	values := make([]float64, len(bars))
	for i, b := range bars {
		values[i] = b.Value
	}
	yRange := valueRange(values, beginAtZero(spec))

	barWidth, spacing := barGeometry(r.Width, len(bars))
	bc := gochart.BarChart{
		Title:      spec.Title(),
		TitleStyle: r.titleStyle(spec),
		Width:      r.Width,
		Height:     r.Height,
		Background: r.background(),
		BarWidth:   barWidth,
		BarSpacing: spacing,
		XAxis:      gochart.Style{FontSize: 9},
		YAxis: gochart.YAxis{
			Name:  axisTitle(spec, "y"),
			Range: yRange,
		},
		Bars: bars,
	}

	return bc.Render(svg, buf)
}

func (r *Renderer) drawLine(spec *Spec, buf *bytes.Buffer) error {
	if len(spec.Data.Datasets) == 0 {
		return r.drawAxes(spec, buf)
	}

	labels := categoryLabels(spec.Data)
	n := len(labels)
	if n == 0 {
		return fmt.Errorf("no values to plot")
	}

	xAxis, xs := categoryAxis(spec, labels)

	var series []gochart.Series
	var all []float64
	for j, ds := range spec.Data.Datasets {
		ys := make([]float64, n)
		copy(ys, ds.Values)
		all = append(all, ys...)

		stroke := pickColor(ds.BorderColors, 0, j)
		style := gochart.Style{
			StrokeColor: stroke,
			StrokeWidth: math.Max(ds.BorderWidth, 2),
			DotColor:    stroke,
			DotWidth:    3,
		}
		if ds.Fill {
			style.FillColor = pickColor(ds.BackgroundColors, 0, j).WithAlpha(64)
		}

		name := ds.Label
		if name == "" {
			name = fmt.Sprintf("Series %d", j+1)
		}
		series = append(series, gochart.ContinuousSeries{
			Name:    name,
			XValues: xs,
			YValues: ys,
			Style:   style,
		})
	}

	yAxis := gochart.YAxis{
		Name:  axisTitle(spec, "y"),
		Range: valueRange(all, beginAtZero(spec)),
	}
	if c, ok := parseColor(stringify(lookup(spec.Options, "scales", "y", "grid", "color"))); ok {
		yAxis.GridMajorStyle = gochart.Style{StrokeColor: c, StrokeWidth: 1}
	}

	ch := gochart.Chart{
		Title:      spec.Title(),
		TitleStyle: r.titleStyle(spec),
		Width:      r.Width,
		Height:     r.Height,
		Background: r.background(),
		XAxis:      xAxis,
		YAxis:      yAxis,
		Series:     series,
	}

	if legend := legendFor(spec, &ch); legend != nil {
		ch.Elements = []gochart.Renderable{legend}
	}

	return ch.Render(svg, buf)
}

func (r *Renderer) drawPie(spec *Spec, buf *bytes.Buffer) error {
	if len(spec.Data.Datasets) == 0 {
		return fmt.Errorf("no positive values to plot")
	}

	ds := spec.Data.Datasets[0]
	labels := categoryLabels(spec.Data)

	var values []gochart.Value
	for i, v := range ds.Values {
		if v <= 0 {
			continue
		}
		label := ""
		if i < len(labels) {
			label = labels[i]
		}
		values = append(values, gochart.Value{
			Label: label,
			Value: v,
			Style: gochart.Style{
				FillColor:   pickColor(ds.BackgroundColors, i, i),
				StrokeColor: drawing.ColorWhite,
				StrokeWidth: math.Max(ds.BorderWidth, 1),
			},
		})
	}

	if len(values) == 0 {
		return fmt.Errorf("no positive values to plot")
	}

	pc := gochart.PieChart{
		Title:      spec.Title(),
		TitleStyle: r.titleStyle(spec),
		Width:      r.Width,
		Height:     r.Height,
		Background: r.background(),
		Values:     values,
	}

	return pc.Render(svg, buf)
}

// drawAxes draws the labelled, empty axes of a bar or line chart that has
// no datasets
func (r *Renderer) drawAxes(spec *Spec, buf *bytes.Buffer) error {
	labels := categoryLabels(spec.Data)
	if len(labels) == 0 {
		labels = []string{""}
	}
	xAxis, xs := categoryAxis(spec, labels)

	ch := gochart.Chart{
		Title:      spec.Title(),
		TitleStyle: r.titleStyle(spec),
		Width:      r.Width,
		Height:     r.Height,
		Background: r.background(),
		XAxis:      xAxis,
		YAxis: gochart.YAxis{
			Name:  axisTitle(spec, "y"),
			Range: valueRange(nil, true),
		},
		// go-chart needs a visible series to draw the axes
		Series: []gochart.Series{gochart.ContinuousSeries{
			XValues: xs,
			YValues: make([]float64, len(xs)),
			Style:   gochart.Style{StrokeColor: drawing.ColorTransparent, StrokeWidth: 1},
		}},
	}

	return ch.Render(svg, buf)
}

// categoryAxis places the labels at 1..n. go-chart sizes the axis from its
// ticks, so blank ticks at the edges keep half a slot either side.
func categoryAxis(spec *Spec, labels []string) (gochart.XAxis, []float64) {
	n := len(labels)
	xs := make([]float64, n)
	ticks := make([]gochart.Tick, 0, n+2)

	ticks = append(ticks, gochart.Tick{Value: 0.5})
	for i, label := range labels {
		xs[i] = float64(i + 1)
		ticks = append(ticks, gochart.Tick{Value: xs[i], Label: label})
	}
	ticks = append(ticks, gochart.Tick{Value: float64(n) + 0.5})

	return gochart.XAxis{
		Name:  axisTitle(spec, "x"),
		Range: &gochart.ContinuousRange{Min: 0.5, Max: float64(n) + 0.5},
		Ticks: ticks,
	}, xs
}

// categoryLabels returns the labels, padded with positions when a dataset
// is longer than the label list
func categoryLabels(data Data) []string {
	n := len(data.Labels)
	for _, ds := range data.Datasets {
		if len(ds.Values) > n {
			n = len(ds.Values)
		}
	}

	labels := make([]string, n)
	for i := range labels {
		if i < len(data.Labels) {
			labels[i] = data.Labels[i]
		} else {
			labels[i] = fmt.Sprintf("%d", i+1)
		}
	}
	return labels
}

func beginAtZero(spec *Spec) bool {
	return truthy(lookup(spec.Options, "scales", "y", "beginAtZero"))
}

func axisTitle(spec *Spec, axis string) string {
	if !truthy(lookup(spec.Options, "scales", axis, "title", "display")) {
		return ""
	}
	return stringify(lookup(spec.Options, "scales", axis, "title", "text"))
}

// valueRange is always non-degenerate so go-chart never sees a zero range
func valueRange(values []float64, fromZero bool) *gochart.ContinuousRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if len(values) == 0 {
		lo, hi = 0, 1
	}
	if fromZero {
		lo = math.Min(lo, 0)
		hi = math.Max(hi, 0)
	}
	if hi-lo == 0 {
		hi = lo + 1
	}
	pad := (hi - lo) * 0.05
	if !fromZero || lo < 0 {
		lo -= pad
	}
	return &gochart.ContinuousRange{Min: lo, Max: hi + pad}
}

func barGeometry(width, bars int) (barWidth, spacing int) {
	usable := float64(width - 120)
	slot := usable / float64(bars)
	barWidth = int(math.Max(4, math.Min(60, slot*0.7)))
	spacing = int(math.Max(2, math.Min(40, slot*0.3)))
	return barWidth, spacing
}

// legendFor honours plugins.legend.display and plugins.legend.position
func legendFor(spec *Spec, ch *gochart.Chart) gochart.Renderable {
	legend, _ := lookup(spec.Options, "plugins", "legend").(map[string]interface{})
	if display, ok := legend["display"]; ok && !truthy(display) {
		return nil
	}

	switch stringify(legend["position"]) {
	case "left":
		return gochart.LegendLeft(ch)
	case "top", "right":
		return gochart.LegendThin(ch)
	default:
		return gochart.Legend(ch)
	}
}
