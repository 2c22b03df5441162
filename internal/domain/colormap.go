package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ExportGrowthColors is the nine-step blue scale used for map markers.
var ExportGrowthColors = []string{
	"#f7fbff", "#deebf7", "#c6dbef", "#9ecae1", "#6baed6",
	"#4292c6", "#2171b5", "#08519c", "#08306b",
}

type rgb struct{ r, g, b float64 }

// Colormap maps a value range linearly onto a sequence of color stops.
type Colormap struct {
	stops    []rgb
	min, max float64
}

// NewColormap parses "#rrggbb" stops for the range [vmin, vmax].
func NewColormap(stops []string, vmin, vmax float64) (Colormap, error) {
	if len(stops) == 0 {
		return Colormap{}, fmt.Errorf("colormap needs at least one stop")
	}
	parsed := make([]rgb, len(stops))
	for i, s := range stops {
		c, err := parseHex(s)
		if err != nil {
			return Colormap{}, err
		}
		parsed[i] = c
	}
	if vmin > vmax {
		vmin, vmax = vmax, vmin
	}
	return Colormap{stops: parsed, min: vmin, max: vmax}, nil
}

// Min returns the lower bound of the range.
func (c Colormap) Min() float64 { return c.min }

// Max returns the upper bound of the range.
func (c Colormap) Max() float64 { return c.max }

// At returns the interpolated color for v. Values outside the range clamp to
// the end stops; a degenerate range maps everything to the first stop.
func (c Colormap) At(v float64) string {
	if len(c.stops) == 0 {
		return ""
	}
	if len(c.stops) == 1 || c.max == c.min || math.IsNaN(v) {
		return c.stops[0].hex()
	}

	t := (v - c.min) / (c.max - c.min)
	t = math.Max(0, math.Min(1, t))

	pos := t * float64(len(c.stops)-1)
	i := int(math.Floor(pos))
	if i >= len(c.stops)-1 {
		return c.stops[len(c.stops)-1].hex()
	}
	frac := pos - float64(i)
	a, b := c.stops[i], c.stops[i+1]
	return rgb{
		r: a.r + (b.r-a.r)*frac,
		g: a.g + (b.g-a.g)*frac,
		b: a.b + (b.b-a.b)*frac,
	}.hex()
}

func (c rgb) hex() string {
	return fmt.Sprintf("#%02x%02x%02x", channel(c.r), channel(c.g), channel(c.b))
}

func channel(v float64) int {
	return int(math.Round(math.Max(0, math.Min(255, v))))
}

func parseHex(s string) (rgb, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return rgb{}, fmt.Errorf("invalid color %q", s)
	}
	n, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return rgb{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return rgb{
		r: float64(n >> 16 & 0xff),
		g: float64(n >> 8 & 0xff),
		b: float64(n & 0xff),
	}, nil
}
