package analysis

import (
	"fmt"
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteChart renders an HTML page with the interval series and an
// interval histogram for one report, for eyeballing jitter and dropouts
// that summary statistics flatten out.
func WriteChart(path, report string, intervalsUS []float64) error {
	if len(intervalsUS) == 0 {
		return fmt.Errorf("no intervals to chart for %s", report)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s inter-sample interval", report),
			Subtitle: fmt.Sprintf("%d intervals, µs on the reconstructed sample timeline", len(intervalsUS)),
		}),
		charts.WithYAxisOpts(opts.YAxis{Name: "interval (µs)"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "sample"}),
	)
	xs := make([]string, len(intervalsUS))
	series := make([]opts.LineData, len(intervalsUS))
	for i, v := range intervalsUS {
		xs[i] = fmt.Sprintf("%d", i)
		series[i] = opts.LineData{Value: v}
	}
	line.SetXAxis(xs).AddSeries("interval", series)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s interval distribution", report)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "count"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "interval bucket (µs)"}),
	)
	labels, counts := histogram(intervalsUS, 40)
	bars := make([]opts.BarData, len(counts))
	for i, c := range counts {
		bars[i] = opts.BarData{Value: c}
	}
	bar.SetXAxis(labels).AddSeries("count", bars)

	page := components.NewPage()
	page.AddCharts(line, bar)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	defer f.Close()
	return page.Render(f)
}

// histogram buckets the intervals into at most n equal-width bins.
func histogram(values []float64, n int) (labels []string, counts []int) {
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		return []string{fmt.Sprintf("%.0f", lo)}, []int{len(values)}
	}
	width := (hi - lo) / float64(n)
	counts = make([]int, n)
	for _, v := range values {
		i := int((v - lo) / width)
		if i >= n {
			i = n - 1
		}
		counts[i]++
	}
	labels = make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("%.0f", lo+width*(float64(i)+0.5))
	}
	return labels, counts
}
