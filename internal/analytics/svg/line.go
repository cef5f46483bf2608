package svg

import (
	"fmt"
	"html/template"
	"strings"
)

// Line renders a line chart of series over labels. A single point is drawn centred.
func Line(width, height int, series []float64, labels []string, opts LineOpts) (template.HTML, error) {
	if len(series) == 0 {
		return "", fmt.Errorf("svg: series required")
	}
	if len(series) != len(labels) {
		return "", fmt.Errorf("svg: labels length must match series")
	}
	f, err := newFrame(width, height, opts.Padding, opts.Format)
	if err != nil {
		return "", err
	}
	minVal, maxVal := bounds(series)
	f.scale(minVal, maxVal, opts.FitRange)

	strokeColor := fallback(opts.StrokeColor, "#2563eb")
	fillColor := fallback(opts.FillColor, "rgba(37,99,235,0.12)")
	axisColor := fallback(opts.AxisColor, "#475569")
	gridColor := fallback(opts.GridColor, "#cbd5f5")

	x := func(i int) float64 {
		if len(series) == 1 {
			return f.padding + f.chartW/2
		}
		return f.padding + float64(i)*f.chartW/float64(len(series)-1)
	}

	var path strings.Builder
	for i, value := range series {
		cmd := " L"
		if i == 0 {
			cmd = "M"
		}
		fmt.Fprintf(&path, "%s%.2f %.2f", cmd, x(i), f.y(value))
	}

	var b strings.Builder
	f.open(&b, "line", fallback(opts.Title, "Line chart"), fallback(opts.Description, "Trend data"))
	f.grid(&b, opts.TickCount, axisColor, gridColor)
	f.axes(&b, axisColor, f.bottom())

	if len(series) > 1 {
		area := fmt.Sprintf("%s L%.2f %.2f L%.2f %.2f Z", path.String(), x(len(series)-1), f.bottom(), x(0), f.bottom())
		fmt.Fprintf(&b, `<path d="%s" fill="%s" stroke="none" aria-hidden="true"></path>`, area, fillColor)
	}
	fmt.Fprintf(&b, `<path d="%s" fill="none" stroke="%s" stroke-width="2" stroke-linejoin="round" stroke-linecap="round"></path>`, path.String(), strokeColor)

	for i, value := range series {
		if opts.ShowDots || len(series) == 1 {
			fmt.Fprintf(&b, `<circle cx="%.2f" cy="%.2f" r="3" fill="%s"><title>%s: %s</title></circle>`,
				x(i), f.y(value), strokeColor, template.HTMLEscapeString(labels[i]), template.HTMLEscapeString(f.format(value)))
		}
	}
	for i, label := range labels {
		f.label(&b, x(i), axisColor, label)
	}

	b.WriteString("</svg>")
	return template.HTML(b.String()), nil
}
