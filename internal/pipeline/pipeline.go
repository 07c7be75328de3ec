// Package pipeline wires the magnitude mapper, demodulator, CRC
// engine, message decoder, and aircraft tracker into the single
// producer/consumer path a receiver runs: raw samples in, tracked
// aircraft and outgoing wire messages out.
package pipeline

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/regentag/go1090/internal/crc"
	"github.com/regentag/go1090/internal/decode"
	"github.com/regentag/go1090/internal/demod"
	"github.com/regentag/go1090/internal/magnitude"
	"github.com/regentag/go1090/internal/tracker"
)

// Options configures a Pipeline's decode behaviour.
type Options struct {
	FixErrors  bool // attempt single-bit CRC correction on DF11/DF17
	Aggressive bool // also attempt two-bit correction on DF17 and accept noisier demod candidates; brute-force AP recovery runs in either mode
	ICAOTTL    time.Duration

	// ShowTTL is how long an aircraft may go quiet before maintenance
	// marks it last-time-seen; RemoveTTL is how long before it is
	// evicted outright. Both are independent: ShowTTL <= RemoveTTL is
	// the usual configuration, but Sky enforces no such ordering.
	ShowTTL   time.Duration
	RemoveTTL time.Duration
}

// Sink receives every message this Pipeline successfully validates,
// after it has been merged into the tracker, along with the raw frame
// bytes (ME payload and trailing CRC/AP included) that produced it.
// Implementations (internal/netout's servers, the AMQP sink) must not
// block; a slow sink stalls the whole decode loop for every other sink
// since delivery happens inline with ProcessSamples.
type Sink interface {
	Handle(icao uint32, mm decode.Message, a tracker.Aircraft, raw []byte)
}

// Pipeline holds the decode-time state that must survive across
// ProcessSamples calls: the magnitude lookup table, ICAO cache, and
// aircraft table. It is not safe for concurrent ProcessSamples calls
// from multiple goroutines (the reference architecture's single
// consumer thread owns it); Sky and ICAOCache are independently
// mutex-protected so Snapshot/Estimate reads from other goroutines are
// safe.
type Pipeline struct {
	opts Options
	log  *logrus.Logger

	magTable *magnitude.Table
	icao     *crc.ICAOCache
	sky      *tracker.Sky

	sinks []Sink

	Stats Stats
}

// Stats accumulates simple decode counters. This package does not log
// them; callers read them from Pipeline.Stats.
type Stats struct {
	FramesDemodulated int64
	GoodCRC           int64
	BadCRC            int64
	SingleBitFixed    int64
	TwoBitFixed       int64
	AddressRecovered  int64
}

// New constructs a Pipeline ready to process sample batches.
func New(opts Options, log *logrus.Logger) *Pipeline {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pipeline{
		opts:     opts,
		log:      log,
		magTable: magnitude.NewTable(),
		icao:     crc.NewICAOCache(opts.ICAOTTL),
		sky:      tracker.NewSky(opts.ShowTTL, opts.RemoveTTL),
	}
}

// Sky exposes the tracker table for snapshotting by consumers
// (cmd/console, cmd/server).
func (p *Pipeline) Sky() *tracker.Sky { return p.sky }

// AddSink registers a sink to receive every validated message.
func (p *Pipeline) AddSink(s Sink) {
	p.sinks = append(p.sinks, s)
}

// ProcessSamples converts a raw interleaved I/Q sample buffer into a
// magnitude vector and runs the full demod -> CRC -> decode -> track
// chain over it, dispatching every message whose CRC validated (either
// cleanly, after single/two-bit correction, or via ICAO brute-force
// recovery) to the pipeline's sinks.
func (p *Pipeline) ProcessSamples(iq []byte, now time.Time) {
	m := p.magTable.Convert(iq)
	p.ProcessMagnitude(m, now)
}

// ProcessMagnitude is like ProcessSamples but takes an already
// computed magnitude vector, for callers replaying a captured .mag
// file or feeding synthetic vectors in tests.
func (p *Pipeline) ProcessMagnitude(m []uint16, now time.Time) {
	demod.Scan(m, p.opts.Aggressive, func(f demod.Frame) bool {
		return p.handleFrame(f, now)
	})
}

// handleFrame validates and decodes a single demodulated frame,
// returning true if it was accepted (CRC ok, possibly after
// correction or brute-force address recovery) so the demodulator can
// skip past the whole message.
func (p *Pipeline) handleFrame(f demod.Frame, now time.Time) bool {
	p.Stats.FramesDemodulated++

	df := int(f.Msg[0]) >> 3
	nbits := demod.MessageLenBits(df)
	msg := f.Msg[:nbits/8]

	crcOK := crc.Check(msg, nbits)
	errorBit := -1

	if !crcOK && p.opts.FixErrors && (df == 11 || df == 17) {
		if bit := crc.FixSingle(msg, nbits); bit != -1 {
			errorBit = bit
			crcOK = true
			p.Stats.SingleBitFixed++
		} else if p.opts.Aggressive && df == 17 {
			if bit := crc.FixTwo(msg, nbits); bit != -1 {
				errorBit = bit
				crcOK = true
				p.Stats.TwoBitFixed++
			}
		}
	}

	var mm decode.Message
	var decoded bool
	var recoveredAddr uint32
	var addrRecovered bool

	if df != 11 && df != 17 {
		if addr, ok := crc.BruteForceAddress(msg, nbits, func(a uint32) bool {
			return p.icao.Contains(a, now)
		}); ok {
			recoveredAddr, addrRecovered = addr, true
			crcOK = true
			p.Stats.AddressRecovered++
		}
	} else if crcOK && errorBit == -1 {
		mm = decode.Decode(msg)
		decoded = true
		p.icao.Add(mm.ICAO(), now)
	}

	if crcOK {
		p.Stats.GoodCRC++
	} else {
		p.Stats.BadCRC++
		return false
	}

	if !decoded {
		mm = decode.Decode(msg)
	}
	if addrRecovered {
		mm.AA1, mm.AA2, mm.AA3 = recoveredAddr>>16&0xff, recoveredAddr>>8&0xff, recoveredAddr&0xff
	}
	a := p.sky.Receive(mm, now)

	for _, s := range p.sinks {
		s.Handle(mm.ICAO(), mm, *a, msg)
	}

	return true
}

// ReplayFrame runs the CRC/decode/track chain directly against an
// already-framed message, skipping demodulation. It is used by the
// hex-replay ingest path, where frames arrive pre-sliced rather than
// as a raw magnitude vector.
func (p *Pipeline) ReplayFrame(msg []byte, now time.Time) bool {
	var buf [14]byte
	copy(buf[:], msg)
	return p.handleFrame(demod.Frame{Msg: buf}, now)
}

// Maintain runs the tracker's TTL/show-state sweep; callers typically
// invoke this on a fixed interval (e.g. once per second) from the
// consumer event loop.
func (p *Pipeline) Maintain(now time.Time) {
	p.sky.Maintain(now)
}
