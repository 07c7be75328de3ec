package pipeline

import (
	"testing"
	"time"

	"github.com/regentag/go1090/internal/crc"
	"github.com/regentag/go1090/internal/decode"
	"github.com/regentag/go1090/internal/tracker"
)

const (
	testPreambleUS  = 8
	testLongMsgBits = 112
)

// synthesizeCarrier mirrors internal/demod's own test helper: a
// four-spike preamble at start followed by one sample pair per bit.
func synthesizeCarrier(start int, msgBits []byte) []uint16 {
	const lo, hi = 20, 4000
	total := start + 2*(testPreambleUS+testLongMsgBits) + 32
	m := make([]uint16, total)
	for i := range m {
		m[i] = lo
	}
	for _, s := range []int{0, 2, 7, 9} {
		m[start+s] = hi
	}
	base := start
	for i, bit := range msgBits {
		off := base + 2*testPreambleUS + 2*i
		if bit == 1 {
			m[off], m[off+1] = hi, lo
		} else {
			m[off], m[off+1] = lo, hi
		}
	}
	return m
}

func bitsFromBytes(msg []byte, nbits int) []byte {
	bits := make([]byte, 0, nbits)
	for _, b := range msg {
		for i := 0; i < 8; i++ {
			bits = append(bits, (b>>(7-uint(i)))&1)
		}
	}
	for len(bits) < testLongMsgBits {
		bits = append(bits, 0)
	}
	return bits
}

// df11Frame builds a valid 56-bit DF11 all-call reply for icao, with a
// correct trailing parity so it passes CRC on the first pass with no
// correction needed.
func df11Frame(icao uint32) []byte {
	msg := make([]byte, crc.ShortMsgBits/8)
	msg[0] = 11 << 3
	msg[1] = byte(icao >> 16)
	msg[2] = byte(icao >> 8)
	msg[3] = byte(icao)

	sum := crc.Compute(msg, crc.ShortMsgBits)
	msg[4] = byte(sum >> 16)
	msg[5] = byte(sum >> 8)
	msg[6] = byte(sum)
	return msg
}

type recordingSink struct {
	calls []uint32
	raws  [][]byte
}

func (r *recordingSink) Handle(icao uint32, mm decode.Message, a tracker.Aircraft, raw []byte) {
	r.calls = append(r.calls, icao)
	r.raws = append(r.raws, append([]byte(nil), raw...))
}

func TestProcessMagnitudeTracksCleanDF11(t *testing.T) {
	icao := uint32(0x48402c)
	msg := df11Frame(icao)
	m := synthesizeCarrier(5, bitsFromBytes(msg, testLongMsgBits))

	p := New(Options{ICAOTTL: time.Minute, ShowTTL: time.Minute, RemoveTTL: time.Minute}, nil)
	sink := &recordingSink{}
	p.AddSink(sink)

	now := time.Unix(1700000000, 0)
	p.ProcessMagnitude(m, now)

	if p.Stats.GoodCRC == 0 {
		t.Fatalf("Stats.GoodCRC = 0, want at least 1 after decoding a clean DF11 frame")
	}
	if p.Sky().Count() != 1 {
		t.Fatalf("Sky().Count() = %d, want 1", p.Sky().Count())
	}
	if len(sink.calls) == 0 || sink.calls[0] != icao {
		t.Fatalf("sink.calls = %v, want first call with icao %06X", sink.calls, icao)
	}
	if len(sink.raws) == 0 || string(sink.raws[0]) != string(msg) {
		t.Fatalf("sink.raws[0] = %x, want the full demodulated frame %x", sink.raws[0], msg)
	}
}

func TestProcessMagnitudeIgnoresFlatSignal(t *testing.T) {
	m := make([]uint16, 4*(testPreambleUS+testLongMsgBits))
	for i := range m {
		m[i] = 50
	}

	p := New(Options{}, nil)
	sink := &recordingSink{}
	p.AddSink(sink)

	p.ProcessMagnitude(m, time.Now())

	if len(sink.calls) != 0 {
		t.Fatalf("sink.calls = %v, want none for a flat signal", sink.calls)
	}
	if p.Stats.FramesDemodulated != 0 {
		t.Fatalf("Stats.FramesDemodulated = %d, want 0", p.Stats.FramesDemodulated)
	}
}

func TestMaintainEvictsStaleAircraft(t *testing.T) {
	icao := uint32(0x3c6444)
	msg := df11Frame(icao)
	m := synthesizeCarrier(5, bitsFromBytes(msg, testLongMsgBits))

	p := New(Options{ShowTTL: time.Second, RemoveTTL: 2 * time.Second}, nil)
	start := time.Unix(1700000000, 0)
	p.ProcessMagnitude(m, start)

	if p.Sky().Count() != 1 {
		t.Fatalf("Sky().Count() = %d, want 1 right after first sighting", p.Sky().Count())
	}

	// Past the show TTL but not yet the remove TTL: still present.
	p.Maintain(start.Add(1500 * time.Millisecond))
	if p.Sky().Count() != 1 {
		t.Fatalf("Sky().Count() = %d, want 1 before the remove TTL elapses", p.Sky().Count())
	}

	// A single pass past the remove TTL must evict it outright.
	p.Maintain(start.Add(3 * time.Second))

	if p.Sky().Count() != 0 {
		t.Fatalf("Sky().Count() = %d, want 0 after a single maintenance pass past the remove TTL", p.Sky().Count())
	}
}
