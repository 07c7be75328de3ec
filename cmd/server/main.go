// Command server runs the same sample-ingest pipeline as cmd/go1090
// plus a small chi HTTP server exposing the three JSON snapshot
// schemas consumers like a web front end or a monitoring job poll:
// a flat aircraft list, an extended per-aircraft object, and receiver
// metadata.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/regentag/go1090/internal/config"
	"github.com/regentag/go1090/internal/decode"
	"github.com/regentag/go1090/internal/netout"
	"github.com/regentag/go1090/internal/pipeline"
	"github.com/regentag/go1090/internal/tracker"
)

const sampleChunk = 256 * 1024

// flatAircraft is one entry of GET /data.json.
type flatAircraft struct {
	Hex      string  `json:"hex"`
	Flight   string  `json:"flight,omitempty"`
	Lat      float64 `json:"lat,omitempty"`
	Lon      float64 `json:"lon,omitempty"`
	Altitude int     `json:"altitude"`
	Speed    int     `json:"speed,omitempty"`
	Track    int     `json:"track,omitempty"`
	Messages int64   `json:"messages"`
	Seen     int64   `json:"seen"`
}

// extendedAircraft is one entry of GET /data/aircraft.json's
// aircraft[] array; it carries the extra fields spec §6 names
// (nucp, seen_pos, rssi) that this repo's demod/decode/tracker chain
// cannot populate from a real receiver without additional hardware
// telemetry dump1090 also leaves at a placeholder until CPR
// confidence / RSSI plumbing is added.
type extendedAircraft struct {
	flatAircraft
	NUCp    int     `json:"nucp"`
	SeenPos float64 `json:"seen_pos,omitempty"`
	RSSI    float64 `json:"rssi"`
}

type aircraftJSON struct {
	Now      int64              `json:"now"`
	Messages int64              `json:"messages"`
	Aircraft []extendedAircraft `json:"aircraft"`
}

type receiverJSON struct {
	Version string  `json:"version"`
	Refresh int     `json:"refresh"`
	History int     `json:"history"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func main() {
	v := viper.New()
	config.SetDefaults(v)
	v.SetEnvPrefix("go1090")
	v.AutomaticEnv()
	v.BindEnv("observer-pos", "OBSERVER_POS")

	log := logrus.New()

	cfg, err := config.Load(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading configuration: %v\n", err)
		os.Exit(1)
	}

	p := pipeline.New(pipeline.Options{
		FixErrors:  cfg.FixErrors,
		Aggressive: cfg.Aggressive,
		ICAOTTL:    time.Minute,
		ShowTTL:    time.Duration(cfg.ShowTTLSeconds) * time.Second,
		RemoveTTL:  time.Duration(cfg.RemoveTTLSeconds) * time.Second,
	}, log)

	rawSrv := netout.NewRawServer()
	sbsSrv := netout.NewSBSServer()
	p.AddSink(&serverSink{rawSrv: rawSrv, sbsSrv: sbsSrv})

	if ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.NetRawPort)); err == nil {
		go rawSrv.Serve(ln)
	} else {
		log.WithError(err).Warn("raw feed listener unavailable")
	}
	if ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.NetSBSPort)); err == nil {
		go sbsSrv.Serve(ln)
	} else {
		log.WithError(err).Warn("sbs feed listener unavailable")
	}

	stop := make(chan struct{})
	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				p.Maintain(time.Now())
			case <-stop:
				return
			}
		}
	}()
	go rawSrv.RunHeartbeat(time.Second, stop)

	go func() {
		r := bufio.NewReaderSize(os.Stdin, sampleChunk)
		buf := make([]byte, sampleChunk)
		for {
			n, err := io.ReadFull(r, buf)
			if n > 0 {
				p.ProcessSamples(buf[:n], time.Now())
			}
			if err != nil {
				log.WithError(err).Info("sample input closed")
				return
			}
		}
	}()

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.NetHTTPPort),
		Handler: newRouter(p, cfg),
	}

	go func() {
		log.WithField("addr", httpSrv.Addr).Info("serving JSON snapshot endpoints")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	close(stop)
	log.Info("shutting down")
}

func newRouter(p *pipeline.Pipeline, cfg *config.Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/data.json", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, flatSnapshot(p.Sky().Snapshot(), time.Now()))
	})

	r.Get("/data/aircraft.json", func(w http.ResponseWriter, req *http.Request) {
		now := time.Now()
		snap := p.Sky().Snapshot()
		writeJSON(w, aircraftJSON{
			Now:      now.Unix(),
			Messages: totalMessages(snap),
			Aircraft: extendedSnapshot(snap, now),
		})
	})

	r.Get("/data/receiver.json", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, receiverJSON{
			Version: "go1090",
			Refresh: 1000,
			History: 0,
			Lat:     cfg.ObserverPos.Lat,
			Lon:     cfg.ObserverPos.Lon,
		})
	})

	return r
}

// flatSnapshot renders aircrafts as of now; Seen reports each entry's
// age in seconds, matching what dump1090-ecosystem clients expect
// rather than an absolute timestamp.
func flatSnapshot(aircrafts []tracker.Aircraft, now time.Time) []flatAircraft {
	out := make([]flatAircraft, 0, len(aircrafts))
	for _, a := range aircrafts {
		out = append(out, flatAircraft{
			Hex:      a.HexAddr,
			Flight:   a.Callsign,
			Lat:      a.Lat,
			Lon:      a.Lon,
			Altitude: a.Altitude,
			Speed:    a.Speed,
			Track:    a.Track,
			Messages: a.Messages,
			Seen:     int64(now.Sub(a.Seen).Seconds()),
		})
	}
	return out
}

func extendedSnapshot(aircrafts []tracker.Aircraft, now time.Time) []extendedAircraft {
	flat := flatSnapshot(aircrafts, now)
	out := make([]extendedAircraft, len(flat))
	for i, f := range flat {
		out[i] = extendedAircraft{flatAircraft: f}
	}
	return out
}

func totalMessages(aircrafts []tracker.Aircraft) int64 {
	var total int64
	for _, a := range aircrafts {
		total += a.Messages
	}
	return total
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// serverSink mirrors cmd/go1090's netoutSink: forward every tracked
// message onto the raw and SBS TCP feeds this process also serves.
type serverSink struct {
	rawSrv *netout.RawServer
	sbsSrv *netout.SBSServer
}

func (s *serverSink) Handle(icao uint32, mm decode.Message, a tracker.Aircraft, raw []byte) {
	s.rawSrv.Publish(raw)

	s.sbsSrv.Publish(icao, mm, a.Lat, a.Lon, a.HasPosition, a.Speed, a.Track, 0, time.Now())
}
