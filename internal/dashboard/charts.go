// Package dashboard renders the indicator views as standalone HTML charts and
// the page that frames them.
package dashboard

import (
	"fmt"
	"io"

	"github.com/couchcryptid/trade-indicators/internal/domain"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	chartWidth  = "100%"
	chartHeight = "460px"
	accent      = "#009EDB"
)

func initOpts(title string) charts.GlobalOpts {
	return charts.WithInitializationOpts(opts.Initialization{
		PageTitle: title,
		Width:     chartWidth,
		Height:    chartHeight,
	})
}

// markerSize turns the radius carried in the fourth value dimension into a
// symbol diameter.
var markerSize = opts.FuncOpts(`function (val) { return val[3] * 2; }`)

// RenderLine writes the yearly time series for one country.
func RenderLine(w io.Writer, indicator, country string, rows []domain.Observation) error {
	title := fmt.Sprintf("Yearly Export Growth: %s", country)
	if len(rows) == 0 {
		title = fmt.Sprintf("No data for %q", country)
	}

	years := make([]string, len(rows))
	data := make([]opts.LineData, len(rows))
	for i, r := range rows {
		years[i] = r.Date
		data[i] = opts.LineData{Value: r.Value, Name: r.Date}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		initOpts(title),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: indicator}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Year"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Annual %"}),
	)
	line.SetXAxis(years).
		AddSeries(country, data, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)})).
		SetSeriesOptions(charts.WithItemStyleOpts(opts.ItemStyle{Color: accent}))

	if err := line.Render(w); err != nil {
		return fmt.Errorf("render line chart: %w", err)
	}
	return nil
}

// RenderRanking writes the top countries for a year as a bar chart, highest
// value first.
func RenderRanking(w io.Writer, indicator, year string, rows []domain.Observation) error {
	title := fmt.Sprintf("Top %d Countries by Export Growth (%s)", len(rows), year)
	if len(rows) == 0 {
		title = fmt.Sprintf("No data for %s", year)
	}

	names := make([]string, len(rows))
	data := make([]opts.BarData, len(rows))
	for i, r := range rows {
		names[i] = r.Country
		data[i] = opts.BarData{Value: r.Value, Name: r.CountryISO3}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		initOpts(title),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: indicator}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: 30}}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Annual %"}),
	)
	bar.SetXAxis(names).
		AddSeries(year, data).
		SetSeriesOptions(charts.WithItemStyleOpts(opts.ItemStyle{Color: accent}))

	if err := bar.Render(w); err != nil {
		return fmt.Errorf("render ranking chart: %w", err)
	}
	return nil
}

// RenderMap writes located countries as scatter points on a world map,
// colored along the view's color range.
func RenderMap(w io.Writer, indicator string, view domain.MapView) error {
	title := fmt.Sprintf("Export Growth by Country (%s)", view.Year)
	if len(view.Markers) == 0 {
		title = fmt.Sprintf("No located data for %s", view.Year)
	}

	data := make([]opts.GeoData, len(view.Markers))
	for i, m := range view.Markers {
		data[i] = opts.GeoData{Name: m.Country, Value: []float64{m.Lon, m.Lat, m.Value, m.Radius}}
	}

	lo, hi := view.Min, view.Max
	if lo == hi {
		// A single value still needs a non-empty range for the legend.
		lo, hi = lo-1, hi+1
	}

	geo := charts.NewGeo()
	geo.SetGlobalOptions(
		initOpts(title),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: indicator}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithGeoComponentOpts(opts.GeoComponent{Map: "world"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Dimension:  "2",
			Min:        float32(lo),
			Max:        float32(hi),
			InRange:    &opts.VisualMapInRange{Color: view.Colors},
		}),
	)
	geo.AddSeries(indicator, types.ChartScatter, data,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: markerSize}),
	)

	if err := geo.Render(w); err != nil {
		return fmt.Errorf("render map chart: %w", err)
	}
	return nil
}
