package svg

import (
	"fmt"
	"html/template"
	"math"
	"strings"
)

// frame is the plotting area shared by every chart kind.
type frame struct {
	width, height int
	padding       float64
	chartW        float64
	chartH        float64
	min, max      float64
	format        Formatter
}

func newFrame(width, height int, padding float64, format Formatter) (*frame, error) {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if padding <= 0 {
		padding = DefaultPadding
	}
	if format == nil {
		format = Compact
	}
	f := &frame{
		width:   width,
		height:  height,
		padding: padding,
		chartW:  float64(width) - 2*padding,
		chartH:  float64(height) - 2*padding,
		format:  format,
	}
	if f.chartW <= 0 || f.chartH <= 0 {
		return nil, fmt.Errorf("svg: viewport too small")
	}
	return f, nil
}

// scale sets the value range. Unless fit is set the range always includes zero.
func (f *frame) scale(minVal, maxVal float64, fit bool) {
	if !fit {
		minVal = math.Min(minVal, 0)
		maxVal = math.Max(maxVal, 0)
	} else {
		margin := (maxVal - minVal) * 0.1
		if almostEqual(margin, 0) {
			margin = math.Max(math.Abs(maxVal)*0.1, 1)
		}
		minVal -= margin
		maxVal += margin
	}
	if almostEqual(maxVal, minVal) {
		maxVal = minVal + 1
	}
	f.min, f.max = minVal, maxVal
}

func (f *frame) bottom() float64 { return f.padding + f.chartH }

func (f *frame) right() float64 { return f.padding + f.chartW }

// y maps a value to its vertical position.
func (f *frame) y(v float64) float64 {
	return f.bottom() - (v-f.min)/(f.max-f.min)*f.chartH
}

func (f *frame) open(b *strings.Builder, kind, title, desc string) {
	titleID := makeID(title, kind+"-title")
	descID := makeID(title, kind+"-desc")
	fmt.Fprintf(b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" role="img" aria-labelledby="%s %s">`, f.width, f.height, titleID, descID)
	fmt.Fprintf(b, `<title id="%s">%s</title>`, titleID, template.HTMLEscapeString(title))
	fmt.Fprintf(b, `<desc id="%s">%s</desc>`, descID, template.HTMLEscapeString(desc))
}

func (f *frame) grid(b *strings.Builder, ticks int, axisColor, gridColor string) {
	if ticks <= 0 {
		ticks = DefaultTicks
	}
	for i := 0; i <= ticks; i++ {
		value := f.min + (f.max-f.min)*float64(i)/float64(ticks)
		y := f.y(value)
		fmt.Fprintf(b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="%s" stroke-width="0.5" stroke-dasharray="2,4" aria-hidden="true"></line>`, f.padding, y, f.right(), y, gridColor)
		fmt.Fprintf(b, `<text x="%.2f" y="%.2f" fill="%s" font-size="10" text-anchor="end">%s</text>`, f.padding-6, y+4, axisColor, template.HTMLEscapeString(f.format(value)))
	}
}

// axes draws the value axis and a baseline at y.
func (f *frame) axes(b *strings.Builder, axisColor string, baseline float64) {
	fmt.Fprintf(b, `<g stroke="%s" aria-label="Axes">`, axisColor)
	fmt.Fprintf(b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke-width="1"></line>`, f.padding, f.padding, f.padding, f.bottom())
	fmt.Fprintf(b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke-width="1"></line>`, f.padding, baseline, f.right(), baseline)
	b.WriteString("</g>")
}

func (f *frame) label(b *strings.Builder, x float64, color, text string) {
	fmt.Fprintf(b, `<text x="%.2f" y="%.2f" fill="%s" font-size="10" text-anchor="middle">%s</text>`, x, f.bottom()+14, color, template.HTMLEscapeString(text))
}

// Compact formats large values with k/M/B suffixes.
func Compact(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", v/1_000_000_000)
	case abs >= 1_000_000:
		return fmt.Sprintf("%.1fM", v/1_000_000)
	case abs >= 10_000:
		return fmt.Sprintf("%.1fk", v/1_000)
	case almostEqual(v, math.Round(v)):
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

// Percent formats a value as a signed percentage.
func Percent(v float64) string {
	return fmt.Sprintf("%+.1f%%", v)
}

func fallback(value, defaultValue string) string {
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	return value
}

func bounds(series []float64) (float64, float64) {
	minVal, maxVal := series[0], series[0]
	for _, v := range series[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	return minVal, maxVal
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func makeID(base, suffix string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, strings.ToLower(strings.TrimSpace(base)))
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" {
		cleaned = "chart"
	}
	return cleaned + "-" + suffix
}
