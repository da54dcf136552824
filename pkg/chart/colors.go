package chart

import (
	"strconv"
	"strings"

	"github.com/wcharczuk/go-chart/v2/drawing"
)

// palette is used for series and slices that do not specify a color
var palette = []drawing.Color{
	{R: 54, G: 162, B: 235, A: 255},
	{R: 255, G: 99, B: 132, A: 255},
	{R: 75, G: 192, B: 192, A: 255},
	{R: 255, G: 159, B: 64, A: 255},
	{R: 153, G: 102, B: 255, A: 255},
	{R: 255, G: 205, B: 86, A: 255},
	{R: 201, G: 203, B: 207, A: 255},
}

func paletteColor(i int) drawing.Color {
	return palette[i%len(palette)]
}

// pickColor returns colors[i], colors[0] when only one is given, or the
// palette entry for fallback
func pickColor(colors []string, i, fallback int) drawing.Color {
	switch {
	case i < len(colors):
		if c, ok := parseColor(colors[i]); ok {
			return c
		}
	case len(colors) == 1:
		if c, ok := parseColor(colors[0]); ok {
			return c
		}
	}
	return paletteColor(fallback)
}

// parseColor understands the CSS forms the backend emits: #rgb, #rrggbb,
// #rrggbbaa, rgb(), rgba() and the basic color keywords
func parseColor(s string) (drawing.Color, bool) {
	s = strings.ToLower(strings.TrimSpace(s))

	switch {
	case s == "":
		return drawing.Color{}, false
	case strings.HasPrefix(s, "#"):
		return parseHex(s[1:])
	case strings.HasPrefix(s, "rgba("):
		if strings.Count(s, ",") != 3 || !strings.HasSuffix(s, ")") {
			return drawing.Color{}, false
		}
	case strings.HasPrefix(s, "rgb("):
		if strings.Count(s, ",") != 2 || !strings.HasSuffix(s, ")") {
			return drawing.Color{}, false
		}
	}

	c := drawing.ParseColor(s)
	if c.IsZero() && s != "transparent" {
		return drawing.Color{}, false
	}
	return c, true
}

// parseHex checks the digits before handing them to drawing, which panics
// on short input and ignores an alpha pair
func parseHex(hex string) (drawing.Color, bool) {
	if len(hex) != 3 && len(hex) != 6 && len(hex) != 8 {
		return drawing.Color{}, false
	}
	if _, err := strconv.ParseUint(hex, 16, 32); err != nil {
		return drawing.Color{}, false
	}

	if len(hex) == 8 {
		alpha, _ := strconv.ParseUint(hex[6:], 16, 8)
		return drawing.ColorFromHex(hex[:6]).WithAlpha(uint8(alpha)), true
	}
	return drawing.ColorFromHex(hex), true
}
