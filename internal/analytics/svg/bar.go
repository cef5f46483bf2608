package svg

import (
	"fmt"
	"html/template"
	"math"
	"strings"
)

// Bars renders one bar per label. Negative values hang below the zero line.
func Bars(width, height int, values []float64, labels []string, opts BarOpts) (template.HTML, error) {
	if len(values) == 0 {
		return "", fmt.Errorf("svg: values required")
	}
	if len(values) != len(labels) {
		return "", fmt.Errorf("svg: values length must match labels")
	}
	f, err := newFrame(width, height, opts.Padding, opts.Format)
	if err != nil {
		return "", err
	}
	minVal, maxVal := bounds(values)
	f.scale(minVal, maxVal, false)

	axisColor := fallback(opts.AxisColor, "#475569")
	gridColor := fallback(opts.GridColor, "#cbd5f5")
	color := fallback(opts.Color, "#0ea5e9")
	negative := fallback(opts.NegativeColor, "#ef4444")
	series := fallback(opts.SeriesLabel, "Value")

	zeroY := f.y(0)
	slot := f.chartW / float64(len(labels))
	barWidth := slot * 0.6

	var b strings.Builder
	f.open(&b, "bar", fallback(opts.Title, "Bar chart"), fallback(opts.Description, "Bar comparison"))
	f.grid(&b, opts.TickCount, axisColor, gridColor)

	for i, label := range labels {
		value := values[i]
		top, h := zeroY-math.Max(value, 0)/(f.max-f.min)*f.chartH, math.Abs(value)/(f.max-f.min)*f.chartH
		fill := color
		if value < 0 {
			top = zeroY
			fill = negative
		}
		center := f.padding + (float64(i)+0.5)*slot
		fmt.Fprintf(&b, `<rect x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="%s" aria-label="%s %s: %s"></rect>`,
			center-barWidth/2, top, barWidth, h, fill,
			template.HTMLEscapeString(series), template.HTMLEscapeString(label), template.HTMLEscapeString(f.format(value)))
		if opts.ShowValues {
			ty := top - 4
			if value < 0 {
				ty = top + h + 11
			}
			fmt.Fprintf(&b, `<text x="%.2f" y="%.2f" fill="%s" font-size="9" text-anchor="middle">%s</text>`, center, ty, axisColor, template.HTMLEscapeString(f.format(value)))
		}
		f.label(&b, center, axisColor, label)
	}
	f.axes(&b, axisColor, zeroY)

	b.WriteString("</svg>")
	return template.HTML(b.String()), nil
}
