// Package export renders the visible window as a standalone HTML chart page.
package export

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"BusScope/internal/domain/models"
	"BusScope/internal/services/render"
	"BusScope/internal/services/ticks"
)

// Options tune the generated page.
type Options struct {
	Title string
	// AssetsHost overrides where echarts.min.js is loaded from.
	AssetsHost string
	Theme      string
}

// HTML writes f as an echarts page: one chart in combined mode, one chart per
// signal in separate mode. Series are drawn as step lines with times relative
// to the frame's now.
func HTML(w io.Writer, f render.Frame, o Options) error {
	if o.Title == "" {
		o.Title = "BusScope"
	}
	if o.Theme == "" {
		o.Theme = "dark"
	}

	var renderer interface{ Render(io.Writer) error }
	if f.Mode == render.ModeSeparate && len(f.Series) > 0 {
		page := components.NewPage()
		page.PageTitle = o.Title
		for _, s := range f.Series {
			page.AddCharts(lineChart(f, o, s.Label, s.Range, []render.Series{s}))
		}
		renderer = page
	} else {
		renderer = lineChart(f, o, o.Title, f.CombinedRange, f.Series)
	}
	if err := renderer.Render(w); err != nil {
		return fmt.Errorf("render export: %w", err)
	}
	return nil
}

func lineChart(f render.Frame, o Options, title string, yRange models.Range, series []render.Series) *charts.Line {
	line := charts.NewLine()
	initOpts := opts.Initialization{PageTitle: o.Title, Theme: o.Theme, Width: "1100px", Height: "420px"}
	if o.AssetsHost != "" {
		initOpts.AssetsHost = o.AssetsHost
	}
	line.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("window %s .. %s", ticks.FormatSeconds(f.Window.Start, f.Now), ticks.FormatSeconds(f.Window.End, f.Now)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(len(series) > 1)}),
		charts.WithXAxisOpts(opts.XAxis{
			Type: "value", Name: "t (s)", NameLocation: "middle", NameGap: 25,
			Min: round(f.Window.Start - f.Now), Max: round(f.Window.End - f.Now),
		}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: round(yRange.Min), Max: round(yRange.Max)}),
	)
	for _, s := range series {
		name := s.Label
		if name == "" {
			name = s.ID
		}
		line.AddSeries(name, lineData(s.Samples, f.Now),
			charts.WithLineChartOpts(opts.LineChart{Step: "end", ShowSymbol: opts.Bool(false)}),
		)
	}
	return line
}

func lineData(samples []models.Sample, origin float64) []opts.LineData {
	data := make([]opts.LineData, 0, len(samples))
	for _, s := range samples {
		if math.IsNaN(s.T) || math.IsNaN(s.V) {
			continue
		}
		data = append(data, opts.LineData{Value: []interface{}{round(s.T - origin), s.V}})
	}
	return data
}

// round trims float noise from relative timestamps.
func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
