// Package svg renders small accessible charts as inline SVG.
package svg

// Formatter renders a value on the chart axis or next to a bar.
type Formatter func(float64) string

// LineOpts customises the line chart renderer.
type LineOpts struct {
	Title       string
	Description string
	StrokeColor string
	FillColor   string
	AxisColor   string
	GridColor   string
	Padding     float64
	ShowDots    bool
	TickCount   int
	// FitRange scales the value axis to the data instead of anchoring it at zero.
	FitRange bool
	Format   Formatter
}

// BarOpts customises the bar chart renderer.
type BarOpts struct {
	Title         string
	Description   string
	SeriesLabel   string
	Color         string
	NegativeColor string
	AxisColor     string
	GridColor     string
	Padding       float64
	TickCount     int
	ShowValues    bool
	Format        Formatter
}

// Defaults for the catalog charts.
const (
	DefaultWidth   = 720
	DefaultHeight  = 240
	DefaultPadding = 32.0
	DefaultTicks   = 5
)
