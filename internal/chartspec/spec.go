// Package chartspec defines the chart specification document and its schema.
package chartspec

// ChartType is the mark family used to draw the chart.
type ChartType string

const (
	ChartBar       ChartType = "bar"
	ChartLine      ChartType = "line"
	ChartScatter   ChartType = "scatter"
	ChartBox       ChartType = "box"
	ChartViolin    ChartType = "violin"
	ChartErrorBar  ChartType = "error-bar"
	ChartArea      ChartType = "area"
	ChartHistogram ChartType = "histogram"
)

// FieldType is the measurement type of a column or encoded field.
type FieldType string

const (
	Quantitative FieldType = "quantitative"
	Nominal      FieldType = "nominal"
	Ordinal      FieldType = "ordinal"
	Temporal     FieldType = "temporal"
)

// ErrorBarType selects the statistic drawn by error bars.
type ErrorBarType string

const (
	ErrorBarStdErr ErrorBarType = "stderr"
	ErrorBarStdDev ErrorBarType = "stdev"
	ErrorBarCI     ErrorBarType = "ci"
	ErrorBarIQR    ErrorBarType = "iqr"
)

// Column is the metadata of one data column. Row values never live here.
type Column struct {
	Name string    `json:"name" validate:"required"`
	Type FieldType `json:"type" validate:"required,fieldtype"`
}

// Data holds the column metadata and, optionally, the row values.
type Data struct {
	Columns []Column         `json:"columns" validate:"required,min=1,dive"`
	Values  []map[string]any `json:"values,omitempty"`
}

// Scale configures how a field maps onto an axis or color range.
type Scale struct {
	Type   string    `json:"type,omitempty" validate:"omitempty,oneof=linear log sqrt pow symlog time utc ordinal band point"`
	Domain []float64 `json:"domain,omitempty"`
	Zero   *bool     `json:"zero,omitempty"`
	Nice   *bool     `json:"nice,omitempty"`
}

// Legend configures the legend attached to an encoding channel.
type Legend struct {
	Title   string `json:"title,omitempty"`
	Orient  string `json:"orient,omitempty" validate:"omitempty,oneof=left right top bottom none"`
	Disable bool   `json:"disable,omitempty"`
}

// FieldEncoding binds a column to a visual channel.
type FieldEncoding struct {
	Field      string    `json:"field" validate:"required"`
	Type       FieldType `json:"type" validate:"required,fieldtype"`
	Title      string    `json:"title,omitempty"`
	Scale      *Scale    `json:"scale,omitempty"`
	Legend     *Legend   `json:"legend,omitempty"`
	LabelAngle *float64  `json:"labelAngle,omitempty" validate:"omitempty,min=-90,max=90"`
	Aggregate  string    `json:"aggregate,omitempty" validate:"omitempty,oneof=count sum mean median min max"`
}

// Encoding maps columns onto the x, y and color channels.
type Encoding struct {
	X     *FieldEncoding `json:"x" validate:"required"`
	Y     *FieldEncoding `json:"y" validate:"required"`
	Color *FieldEncoding `json:"color,omitempty"`
}

// ErrorBar configures error bars drawn around aggregated marks.
type ErrorBar struct {
	Type  ErrorBarType `json:"type" validate:"required,oneof=stderr stdev ci iqr"`
	Value *float64     `json:"value,omitempty" validate:"omitempty,gt=0"`
}

// Style is a preset identifier plus overridable visual properties.
type Style struct {
	Preset      string   `json:"preset" validate:"required"`
	Title       string   `json:"title,omitempty"`
	FontFamily  string   `json:"fontFamily,omitempty"`
	FontSize    float64  `json:"fontSize,omitempty" validate:"omitempty,gt=0,lte=96"`
	ColorScheme string   `json:"colorScheme,omitempty"`
	Opacity     *float64 `json:"opacity,omitempty" validate:"omitempty,min=0,max=1"`
	ShowGrid    *bool    `json:"showGrid,omitempty"`
	Width       int      `json:"width,omitempty" validate:"omitempty,gt=0,lte=10000"`
	Height      int      `json:"height,omitempty" validate:"omitempty,gt=0,lte=10000"`
}

// ExportConfig describes how the chart is exported.
type ExportConfig struct {
	Format string `json:"format" validate:"required,oneof=png svg pdf"`
	DPI    int    `json:"dpi" validate:"min=72,max=1200"`
	Width  int    `json:"width,omitempty" validate:"omitempty,gt=0,lte=20000"`
	Height int    `json:"height,omitempty" validate:"omitempty,gt=0,lte=20000"`
}

// ChartSpec is the versioned chart document. A live ChartSpec is never
// mutated in place; every accepted change produces a new value.
type ChartSpec struct {
	ChartType    ChartType    `json:"chartType" validate:"required,oneof=bar line scatter box violin error-bar area histogram"`
	Data         Data         `json:"data"`
	Encoding     Encoding     `json:"encoding"`
	ErrorBar     *ErrorBar    `json:"errorBar,omitempty"`
	Style        Style        `json:"style"`
	ExportConfig ExportConfig `json:"exportConfig"`
	Version      int64        `json:"version" validate:"gte=0"`
}

// Column returns the column named name.
func (s *ChartSpec) Column(name string) (Column, bool) {
	for _, c := range s.Data.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}
