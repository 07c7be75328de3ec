// Command go1090 is the receiver's core process: it reads raw 8-bit
// unsigned I/Q samples (the same format rtl_sdr/rtl_adsb produce) from
// stdin or a replay file, demodulates Mode S frames, validates and
// decodes them, tracks aircraft, and fans the results out over the
// raw, SBS, and AMQP sinks.
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/regentag/go1090/internal/config"
	"github.com/regentag/go1090/internal/decode"
	"github.com/regentag/go1090/internal/netout"
	"github.com/regentag/go1090/internal/pipeline"
	"github.com/regentag/go1090/internal/registry"
	"github.com/regentag/go1090/internal/tracker"
)

// sampleChunk is how many raw I/Q bytes are read per ProcessSamples
// call; dump1090 uses the same 256K default chunk for its sample
// buffer.
const sampleChunk = 256 * 1024

var (
	replayPath string
	verbose    bool
)

func main() {
	v := viper.New()
	config.SetDefaults(v)
	v.SetEnvPrefix("go1090")
	v.AutomaticEnv()
	v.BindEnv("observer-pos", "OBSERVER_POS")

	root := &cobra.Command{
		Use:   "go1090",
		Short: "Mode S / ADS-B receiver core pipeline",
		Long: `go1090 demodulates Mode S frames from raw I/Q samples, validates their
CRC, decodes position/identity/velocity, tracks aircraft, and serves
the result over the raw, SBS, and AMQP feeds.

By default it reads raw unsigned 8-bit I/Q samples from stdin, the
format rtl_sdr/rtl_adsb produce. Pass --replay to read hex-framed
messages (one "*8D4840D6...;" per line) from a file instead, useful
for testing the decode/track pipeline without an SDR attached.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}

	bindFlags(root, v)
	root.Flags().StringVar(&replayPath, "replay", "", "replay hex-framed messages from a file instead of reading raw I/Q from stdin")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug-level logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	flags.Bool("fix-errors", true, "attempt single-bit CRC correction on DF11/DF17")
	flags.Bool("aggressive", false, "also attempt two-bit correction on DF17 and accept demod candidates with up to two ambiguous bits")
	flags.Bool("metric", false, "stored in the configuration; altitude and speed are still reported in feet and knots")
	flags.Int("net-ro-port", 30002, "raw hex feed TCP port")
	flags.Int("net-sbs-port", 30003, "SBS BaseStation feed TCP port")
	flags.Int("net-http-port", 8080, "unused by this command; reserved for cmd/server")
	flags.String("observer-pos", "", "receiver position as \"lat,lon\" (also read from OBSERVER_POS); parsed and validated, but no distance to aircraft is computed from it")
	flags.Int("show-ttl", 60, "seconds an aircraft may go quiet before it is marked stale")
	flags.Int("remove-ttl", 60, "seconds an aircraft may go quiet before it is evicted")
	flags.String("registry-csv", "aircraft.csv", "path to the aircraft registry CSV dump")
	flags.String("registry-db", "aircraft.db", "path to the registry's SQLite mirror")
	flags.Int("registry-cache-ttl-min", 5, "in-memory registry lookup cache TTL, minutes")
	flags.String("amqp-url", "", "AMQP broker URL; empty disables the AMQP sink")
	flags.String("amqp-exchange", "go1090.messages", "AMQP fanout exchange name")

	v.BindPFlags(flags)
}

func run(v *viper.Viper) error {
	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	reg, err := registry.Open(cfg.RegistryCSVPath, cfg.RegistryDBPath, time.Duration(cfg.RegistryCacheTTLMin)*time.Minute)
	if err != nil {
		log.WithError(err).Warn("aircraft registry unavailable, continuing without it")
	} else {
		defer reg.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := pipeline.New(pipeline.Options{
		FixErrors:  cfg.FixErrors,
		Aggressive: cfg.Aggressive,
		ICAOTTL:    time.Minute,
		ShowTTL:    time.Duration(cfg.ShowTTLSeconds) * time.Second,
		RemoveTTL:  time.Duration(cfg.RemoveTTLSeconds) * time.Second,
	}, log)

	rawSrv := netout.NewRawServer()
	sbsSrv := netout.NewSBSServer()
	p.AddSink(&netoutSink{rawSrv: rawSrv, sbsSrv: sbsSrv, reg: reg, log: log})

	if cfg.AMQPURL != "" {
		sink, err := netout.DialAMQPSink(ctx, cfg.AMQPURL, cfg.AMQPExchange, log)
		if err != nil {
			log.WithError(err).Warn("AMQP sink unavailable, continuing without it")
		} else {
			defer sink.Close()
			p.AddSink(&amqpSink{sink: sink})
		}
	}

	if err := listenAndServe(cfg.NetRawPort, rawSrv.Serve, log, "raw"); err != nil {
		return err
	}
	if err := listenAndServe(cfg.NetSBSPort, sbsSrv.Serve, log, "sbs"); err != nil {
		return err
	}
	go rawSrv.RunHeartbeat(time.Second, ctx.Done())

	go maintainLoop(ctx, p, time.Second)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		cancel()
	}()

	log.WithFields(logrus.Fields{
		"raw_port": cfg.NetRawPort,
		"sbs_port": cfg.NetSBSPort,
	}).Info("go1090 receiver starting")

	if replayPath != "" {
		return replayHex(ctx, p, replayPath, log)
	}
	return ingestStdin(ctx, p, log)
}

// listenAndServe opens a TCP listener on port and runs serve on it in
// a background goroutine, logging (but not failing startup on) a
// listen error so one port conflict doesn't take down the whole process.
func listenAndServe(port int, serve func(net.Listener) error, log *logrus.Logger, name string) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		log.WithError(err).Warnf("%s feed listener unavailable on port %d", name, port)
		return nil
	}
	go func() {
		if err := serve(ln); err != nil {
			log.WithError(err).Debugf("%s feed listener stopped", name)
		}
	}()
	return nil
}

func maintainLoop(ctx context.Context, p *pipeline.Pipeline, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Maintain(time.Now())
		}
	}
}

// ingestStdin feeds raw I/Q bytes read from stdin into the pipeline in
// fixed-size chunks, matching the buffer size dump1090 reads from its
// SDR source in.
func ingestStdin(ctx context.Context, p *pipeline.Pipeline, log *logrus.Logger) error {
	r := bufio.NewReaderSize(os.Stdin, sampleChunk)
	buf := make([]byte, sampleChunk)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := io.ReadFull(r, buf)
		if n > 0 {
			p.ProcessSamples(buf[:n], time.Now())
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			log.Info("reached end of sample stream")
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading samples: %w", err)
		}
	}
}

// replayHex reads "*hex;" framed messages from path, one per line,
// decoding and tracking each directly without going through the
// demodulator — useful for exercising CRC/decode/tracker logic against
// a captured raw feed.
func replayHex(ctx context.Context, p *pipeline.Pipeline, path string, log *logrus.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening replay file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "*")
		line = strings.TrimSuffix(line, ";")
		if line == "" || line == "0000" {
			continue
		}

		raw, err := hex.DecodeString(line)
		if err != nil {
			log.WithError(err).WithField("line", line).Debug("skipping malformed replay line")
			continue
		}

		p.ReplayFrame(raw, time.Now())
	}
	return scanner.Err()
}

// netoutSink forwards every tracked message to the raw and SBS TCP
// feeds, and, when a registry is available, logs the aircraft's
// registration/type on first sight — the registry's only consumer in
// this command, since neither wire format carries those fields.
type netoutSink struct {
	rawSrv *netout.RawServer
	sbsSrv *netout.SBSServer
	reg    *registry.Registry
	log    *logrus.Logger
}

func (s *netoutSink) Handle(icao uint32, mm decode.Message, a tracker.Aircraft, raw []byte) {
	s.rawSrv.Publish(raw)

	s.sbsSrv.Publish(icao, mm, a.Lat, a.Lon, a.HasPosition, a.Speed, a.Track, 0, time.Now())

	if s.reg != nil && a.Messages == 1 {
		if entry, ok := s.reg.Lookup(icao); ok {
			s.log.WithFields(logrus.Fields{
				"icao":         a.HexAddr,
				"registration": entry.Registration,
				"type":         entry.ICAOType,
			}).Debug("registry match on first sight")
		}
	}
}

// amqpSink forwards every tracked message as a JSON AircraftEvent.
type amqpSink struct {
	sink *netout.AMQPSink
}

func (s *amqpSink) Handle(icao uint32, mm decode.Message, a tracker.Aircraft, raw []byte) {
	s.sink.Publish(netout.AircraftEvent{
		Hex:       a.HexAddr,
		Flight:    strings.TrimRight(a.Callsign, " "),
		Lat:       a.Lat,
		Lon:       a.Lon,
		HasPos:    a.HasPosition,
		Altitude:  a.Altitude,
		Speed:     a.Speed,
		Track:     a.Track,
		Messages:  a.Messages,
		Timestamp: time.Now().Unix(),
	})
}
