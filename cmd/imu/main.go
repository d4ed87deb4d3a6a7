// Command imu runs the capture service: it drives a BNO08x over a
// serial port, records every decoded sample to the sqlite capture
// store, and serves the HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/imu.report/api"
	"github.com/banshee-data/imu.report/internal/bno08x"
	"github.com/banshee-data/imu.report/internal/db"
	"github.com/banshee-data/imu.report/internal/sh2"
	"github.com/banshee-data/imu.report/internal/shtp"
)

var (
	portPath = flag.String("port", "/dev/ttyUSB0", "Serial port of the sensor (UART-SHTP)")
	listen   = flag.String("listen", ":8080", "Listen address for the HTTP API")
	dbFile   = flag.String("db", "imu_data.db", "Path to the sqlite capture store")
	enable   = flag.String("enable", "rotation_vector=100", "Comma-separated report=rateHz list enabled at startup")
	note     = flag.String("note", "", "Session note recorded in the capture store")
)

const commandTimeout = 3 * time.Second

// guarded serializes access to the single-threaded driver between the
// pump loop and HTTP handlers. The driver itself takes no locks.
type guarded struct {
	mu sync.Mutex
	d  *bno08x.Driver
}

func (g *guarded) pump() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.d.Pump()
}

func (g *guarded) Latest(report uint8) (bno08x.Sample, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.d.Latest(report)
}

func (g *guarded) Features() []bno08x.FeatureEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.d.Features()
}

func (g *guarded) Enable(report uint8, interval time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.d.Enable(report, interval)
}

func (g *guarded) Disable(report uint8) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.d.Disable(report)
}

func (g *guarded) Tare(axes uint8, persist bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, err := g.d.TareNow(axes, sh2.TareBasisRotationVector)
	if err != nil {
		return err
	}
	if err := g.d.Wait(p, commandTimeout); err != nil {
		return err
	}
	if persist {
		p, err = g.d.PersistTare()
		if err != nil {
			return err
		}
		return g.d.Wait(p, commandTimeout)
	}
	return nil
}

func (g *guarded) ClearTare() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, err := g.d.ClearTare()
	if err != nil {
		return err
	}
	return g.d.Wait(p, commandTimeout)
}

func (g *guarded) SaveCalibration() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.d.SaveCalibration(commandTimeout)
}

func (g *guarded) Stats() bno08x.Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.d.Stats()
}

// parseEnableList parses "report=rateHz,report=rateHz" into intervals.
func parseEnableList(s string) (map[uint8]time.Duration, error) {
	out := make(map[uint8]time.Duration)
	if s == "" {
		return out, nil
	}
	for _, item := range strings.Split(s, ",") {
		name, rate, found := strings.Cut(strings.TrimSpace(item), "=")
		if !found {
			return nil, fmt.Errorf("bad enable entry %q, want report=rateHz", item)
		}
		id, ok := sh2.ReportByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown report %q", name)
		}
		hz, err := strconv.ParseFloat(rate, 64)
		if err != nil || hz <= 0 {
			return nil, fmt.Errorf("bad rate %q for %s", rate, name)
		}
		out[id] = time.Duration(1e6/hz) * time.Microsecond
	}
	return out, nil
}

func main() {
	flag.Parse()

	store, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open capture store: %v", err)
	}
	defer store.Close()

	session, err := store.CreateSession(*portPath, *note)
	if err != nil {
		log.Fatalf("failed to create session: %v", err)
	}
	log.Printf("capture session %s", session)

	port, err := shtp.Open(*portPath, nil)
	if err != nil {
		log.Fatalf("failed to open sensor port: %v", err)
	}
	defer port.Close()

	driver := bno08x.New(port, nil)
	driver.OnSample(func(s bno08x.Sample) {
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
			log.Printf("failed to record %s sample: %v", s.Name, err)
		}
	})

	wanted, err := parseEnableList(*enable)
	if err != nil {
		log.Fatalf("bad -enable flag: %v", err)
	}
	for id, interval := range wanted {
		if err := driver.Enable(id, interval); err != nil {
			log.Fatalf("failed to enable %s: %v", sh2.ReportName(id), err)
		}
		log.Printf("enabled %s at %v", sh2.ReportName(id), interval)
	}

	g := &guarded{d: driver}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Pump loop: the serial read timeout paces polling when the sensor
	// is quiet.
	pumpErr := make(chan error, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				pumpErr <- ctx.Err()
				return
			default:
			}
			if err := g.pump(); err != nil && !errors.Is(err, shtp.ErrNoData) {
				pumpErr <- err
				return
			}
		}
	}()

	server := api.NewServer(g)
	mux := server.ServeMux()
	server.AttachDebugRoutes(mux)

	httpSrv := &http.Server{Addr: *listen, Handler: mux}
	go func() {
		log.Printf("listening on %s", *listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutting down")
	case err := <-pumpErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("pump failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx)
}
