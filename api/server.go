// Package api exposes the driver's registry and command surface over
// HTTP for the capture service: JSON endpoints for reading the latest
// samples and managing features, and tsweb debug routes for poking at a
// live sensor.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/imu.report/internal/bno08x"
	"github.com/banshee-data/imu.report/internal/sh2"
)

// Controller is the serialized view of a driver the server talks to.
// The driver itself is single threaded; whoever owns it supplies a
// Controller that holds its lock around each call.
type Controller interface {
	Latest(report uint8) (bno08x.Sample, bool)
	Features() []bno08x.FeatureEntry
	Enable(report uint8, interval time.Duration) error
	Disable(report uint8) error
	Tare(axes uint8, persist bool) error
	ClearTare() error
	SaveCalibration() error
	Stats() bno08x.Stats
}

type Server struct {
	c Controller
}

func NewServer(c Controller) *Server {
	return &Server{c: c}
}

// ServeMux returns the routing table for the public API.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/latest", s.latestHandler)
	mux.HandleFunc("/api/features", s.featuresHandler)
	mux.HandleFunc("/api/stream", s.streamHandler)
	mux.HandleFunc("/api/tare", s.tareHandler)
	mux.HandleFunc("/api/calibration/save", s.saveCalibrationHandler)
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("imu.report capture service\n"))
}

// sampleJSON is the wire shape of a decoded sample.
type sampleJSON struct {
	Report    string    `json:"report"`
	Values    []float64 `json:"values"`
	Accuracy  *uint8    `json:"accuracy,omitempty"`
	Time      time.Time `json:"time"`
	TimeValid bool      `json:"time_valid"`
}

func toSampleJSON(smp bno08x.Sample) sampleJSON {
	out := sampleJSON{
		Report:    smp.Name,
		Values:    smp.Values,
		Time:      smp.Time,
		TimeValid: smp.TimeValid,
	}
	if smp.HasAccuracy {
		acc := smp.Accuracy
		out.Accuracy = &acc
	}
	return out
}

func (s *Server) latestHandler(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("report")
	if name == "" {
		http.Error(w, "missing report parameter", http.StatusBadRequest)
		return
	}
	id, ok := sh2.ReportByName(name)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown report %q", name), http.StatusBadRequest)
		return
	}
	smp, ok := s.c.Latest(id)
	if !ok {
		http.Error(w, "no data yet", http.StatusNotFound)
		return
	}
	writeJSON(w, toSampleJSON(smp))
}

// streamPollInterval paces the SSE tail. The registry is latest-value-
// wins, so polling faster than the report interval just re-reads the
// same sample.
const streamPollInterval = 25 * time.Millisecond

// streamHandler tails one report as server-sent events: each new sample
// observed in the registry is emitted as a `data:` line. Samples decoded
// between polls are skipped; this is a live view, not a capture feed.
func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("report")
	id, ok := sh2.ReportByName(name)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown report %q", name), http.StatusBadRequest)
		return
	}
	fl, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	var last bno08x.Sample
	seen := false
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
		smp, ok := s.c.Latest(id)
		if !ok || (seen && smp.Seq == last.Seq && smp.Ticks == last.Ticks) {
			continue
		}
		last, seen = smp, true
		b, err := json.Marshal(toSampleJSON(smp))
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", b)
		fl.Flush()
	}
}

type featureJSON struct {
	Report     string  `json:"report"`
	Enabled    bool    `json:"enabled"`
	IntervalUS int64   `json:"interval_us"`
	RateHz     float64 `json:"rate_hz,omitempty"`
}

func (s *Server) featuresHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		features := s.c.Features()
		out := make([]featureJSON, 0, len(features))
		for _, f := range features {
			fj := featureJSON{
				Report:     f.Name,
				Enabled:    f.Enabled,
				IntervalUS: f.Interval.Microseconds(),
			}
			if f.Interval > 0 {
				fj.RateHz = 1e6 / float64(f.Interval.Microseconds())
			}
			out = append(out, fj)
		}
		writeJSON(w, out)

	case http.MethodPost:
		name := r.FormValue("report")
		id, ok := sh2.ReportByName(name)
		if !ok {
			http.Error(w, fmt.Sprintf("unknown report %q", name), http.StatusBadRequest)
			return
		}
		if r.FormValue("enabled") == "false" {
			if err := s.c.Disable(id); err != nil {
				http.Error(w, err.Error(), http.StatusBadGateway)
				return
			}
			writeJSON(w, map[string]string{"status": "disabled"})
			return
		}
		interval := 10 * time.Millisecond
		if v := r.FormValue("interval_us"); v != "" {
			us, err := parsePositiveInt(v)
			if err != nil {
				http.Error(w, "bad interval_us", http.StatusBadRequest)
				return
			}
			interval = time.Duration(us) * time.Microsecond
		}
		if err := s.c.Enable(id, interval); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, map[string]string{"status": "enabled"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) tareHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.FormValue("clear") == "true" {
		if err := s.c.ClearTare(); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, map[string]string{"status": "cleared"})
		return
	}
	axes := uint8(sh2.TareAxisAll)
	if r.FormValue("axes") == "z" {
		axes = sh2.TareAxisZ
	}
	persist := r.FormValue("persist") == "true"
	if err := s.c.Tare(axes, persist); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]string{"status": "tared"})
}

func (s *Server) saveCalibrationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.c.SaveCalibration(); err != nil {
		// A rejection is the sensor's verdict, not our failure; pass the
		// message through with a conflict status.
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, map[string]string{"status": "saved"})
}

// AttachDebugRoutes registers /debug endpoints on the given mux. These
// are for localhost/tailnet poking only.
func (s *Server) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleSilentFunc("driver-stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.c.Stats())
	})

	debug.HandleSilentFunc("registry", func(w http.ResponseWriter, r *http.Request) {
		features := s.c.Features()
		out := make(map[string]any, len(features))
		for _, f := range features {
			entry := map[string]any{
				"enabled":     f.Enabled,
				"interval_us": f.Interval.Microseconds(),
			}
			if f.Last != nil {
				entry["last"] = toSampleJSON(*f.Last)
			}
			out[f.Name] = entry
		}
		writeJSON(w, out)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func parsePositiveInt(s string) (int64, error) {
	var v int64
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("not positive: %d", v)
	}
	return v, nil
}
