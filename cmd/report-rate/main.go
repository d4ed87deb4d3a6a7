// Command report-rate captures one report for a fixed duration, then
// prints interval statistics and writes an HTML chart of the observed
// report timing. Useful for checking how close a sensor runs to its
// configured rate.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/banshee-data/imu.report/internal/analysis"
	"github.com/banshee-data/imu.report/internal/bno08x"
	"github.com/banshee-data/imu.report/internal/db"
	"github.com/banshee-data/imu.report/internal/sh2"
	"github.com/banshee-data/imu.report/internal/shtp"
)

var (
	portPath = flag.String("port", "/dev/ttyUSB0", "Serial port of the sensor (UART-SHTP)")
	dbFile   = flag.String("db", "imu_data.db", "Path to the sqlite capture store")
	report   = flag.String("report", "rotation_vector", "Report to capture")
	rateHz   = flag.Float64("rate", 100, "Configured report rate in Hz")
	duration = flag.Duration("duration", 10*time.Second, "Capture duration")
	chart    = flag.String("chart", "report_rate.html", "Output path for the HTML chart, empty to skip")
)

func main() {
	flag.Parse()

	id, ok := sh2.ReportByName(*report)
	if !ok {
		log.Fatalf("unknown report %q", *report)
	}
	if *rateHz <= 0 {
		log.Fatalf("bad -rate %v", *rateHz)
	}
	interval := time.Duration(1e6 / *rateHz) * time.Microsecond

	store, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open capture store: %v", err)
	}
	defer store.Close()

	session, err := store.CreateSession(*portPath, fmt.Sprintf("report-rate %s", *report))
	if err != nil {
		log.Fatalf("failed to create session: %v", err)
	}

	port, err := shtp.Open(*portPath, nil)
	if err != nil {
		log.Fatalf("failed to open sensor port: %v", err)
	}
	defer port.Close()

	driver := bno08x.New(port, nil)
	driver.OnSample(func(s bno08x.Sample) {
		if s.Report != id {
			return
		}
		rec := db.Sample{
			SessionID: session,
			ReportID:  s.Report,
			Report:    s.Name,
			TicksUS:   int64(s.Ticks),
			WallTime:  s.Time,
			TimeValid: s.TimeValid,
			Accuracy:  int(s.Accuracy),
			Values:    s.Values,
		}
		if err := store.RecordSample(rec); err != nil {
			log.Printf("failed to record sample: %v", err)
		}
	})

	if err := driver.Enable(id, interval); err != nil {
		log.Fatalf("failed to enable %s: %v", *report, err)
	}
	log.Printf("capturing %s at %.0f Hz for %v", *report, *rateHz, *duration)

	deadline := time.Now().Add(*duration)
	for time.Now().Before(deadline) {
		if err := driver.Pump(); err != nil && !errors.Is(err, shtp.ErrNoData) {
			log.Fatalf("pump failed: %v", err)
		}
	}

	ticks, err := store.SampleTicks(session, id)
	if err != nil {
		log.Fatalf("failed to read back samples: %v", err)
	}
	intervals := analysis.Intervals(ticks)
	rate, err := analysis.Rate(*report, intervals, interval)
	if err != nil {
		log.Fatalf("rate analysis failed: %v", err)
	}
	fmt.Println(rate)

	stats := driver.Stats()
	if stats.UnbasedSamples > 0 {
		log.Printf("warning: %d samples arrived with no timebase and were excluded", stats.UnbasedSamples)
	}

	if *chart != "" {
		if err := analysis.WriteChart(*chart, *report, intervals); err != nil {
			log.Fatalf("failed to write chart: %v", err)
		}
		log.Printf("wrote %s", *chart)
	}
}
