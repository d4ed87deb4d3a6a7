// Package analysis computes report-rate statistics over captured sample
// timestamps. Its purpose is to verify what rate the sensor actually
// delivered against what was asked for, and to expose timing jitter the
// mean would hide.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// RateReport summarizes the inter-sample intervals of one report type.
// Intervals are in microseconds on the reconstructed sample timeline,
// not host arrival times, so transport batching does not pollute the
// numbers.
type RateReport struct {
	Report     string
	Samples    int
	Configured time.Duration // requested interval; zero if unknown

	MeanUS   float64
	StdDevUS float64
	MinUS    float64
	MaxUS    float64
	P50US    float64
	P95US    float64
	P99US    float64

	AchievedHz   float64
	ConfiguredHz float64
}

// Intervals converts an ordered tick series into successive differences
// in microseconds. Non-positive differences (reordered or duplicated
// rows) are dropped.
func Intervals(ticksUS []int64) []float64 {
	if len(ticksUS) < 2 {
		return nil
	}
	out := make([]float64, 0, len(ticksUS)-1)
	for i := 1; i < len(ticksUS); i++ {
		d := ticksUS[i] - ticksUS[i-1]
		if d > 0 {
			out = append(out, float64(d))
		}
	}
	return out
}

// Rate computes the statistics for one report's interval series.
func Rate(report string, intervalsUS []float64, configured time.Duration) (RateReport, error) {
	if len(intervalsUS) == 0 {
		return RateReport{}, fmt.Errorf("no intervals to analyse for %s", report)
	}

	sorted := append([]float64(nil), intervalsUS...)
	sort.Float64s(sorted)

	r := RateReport{
		Report:     report,
		Samples:    len(intervalsUS) + 1,
		Configured: configured,
		MeanUS:     stat.Mean(intervalsUS, nil),
		StdDevUS:   stat.StdDev(intervalsUS, nil),
		MinUS:      sorted[0],
		MaxUS:      sorted[len(sorted)-1],
		P50US:      stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P95US:      stat.Quantile(0.95, stat.Empirical, sorted, nil),
		P99US:      stat.Quantile(0.99, stat.Empirical, sorted, nil),
	}
	if r.MeanUS > 0 {
		r.AchievedHz = 1e6 / r.MeanUS
	}
	if configured > 0 {
		r.ConfiguredHz = 1e6 / float64(configured.Microseconds())
	}
	if math.IsNaN(r.StdDevUS) {
		// A single interval has no spread.
		r.StdDevUS = 0
	}
	return r, nil
}

// String renders the report the way the capture CLIs print it.
func (r RateReport) String() string {
	s := fmt.Sprintf(
		"%s: %d samples, %.1f Hz achieved (mean %.1f µs, sd %.1f µs, min %.0f, p50 %.0f, p95 %.0f, p99 %.0f, max %.0f)",
		r.Report, r.Samples, r.AchievedHz,
		r.MeanUS, r.StdDevUS, r.MinUS, r.P50US, r.P95US, r.P99US, r.MaxUS,
	)
	if r.ConfiguredHz > 0 {
		s += fmt.Sprintf(" — configured %.1f Hz", r.ConfiguredHz)
	}
	return s
}
