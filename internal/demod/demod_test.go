package demod

import "testing"

// synthesizeCarrier builds a magnitude vector containing one preamble
// (the canonical four-spike shape) at offset start, followed by a
// run of alternating 1/0 bits derived from msgBits (MSB-first, one
// bit per byte, 0 or 1), each bit rendered as the two-sample
// high-then-low / low-then-high pattern detect_modeS expects.
func synthesizeCarrier(start int, msgBits []byte) []uint16 {
	const lo, hi = 20, 4000
	total := start + 2*fullLen + 32
	m := make([]uint16, total)

	spikes := []int{0, 2, 7, 9}
	for i := range m {
		m[i] = lo
	}
	for _, s := range spikes {
		m[start+s] = hi
	}

	base := start
	for i, bit := range msgBits {
		off := base + 2*preambleUS + 2*i
		if bit == 1 {
			m[off] = hi
			m[off+1] = lo
		} else {
			m[off] = lo
			m[off+1] = hi
		}
	}
	return m
}

func bitsForByte(b byte) []byte {
	bits := make([]byte, 8)
	for i := 0; i < 8; i++ {
		bits[i] = (b >> (7 - uint(i))) & 1
	}
	return bits
}

func longMsgBitsFromBytes(msg []byte) []byte {
	var bits []byte
	for _, b := range msg {
		bits = append(bits, bitsForByte(b)...)
	}
	for len(bits) < longMsgBits {
		bits = append(bits, 0)
	}
	return bits
}

func TestScanFindsCleanPreambleAndFrame(t *testing.T) {
	msg := make([]byte, longMsgBits/8)
	msg[0] = 17 << 3 // DF17 so the message is long

	m := synthesizeCarrier(5, longMsgBitsFromBytes(msg))

	var got []Frame
	Scan(m, false, func(f Frame) bool {
		got = append(got, f)
		return true
	})

	if len(got) == 0 {
		t.Fatalf("Scan() found no frames in a synthesized clean preamble")
	}
	if got[0].Errors != 0 {
		t.Errorf("Frame.Errors = %d, want 0 for a clean synthesized signal", got[0].Errors)
	}
	if got[0].Msg[0] != msg[0] {
		t.Errorf("Frame.Msg[0] = %#x, want %#x", got[0].Msg[0], msg[0])
	}
}

func TestScanSkipsFlatSignal(t *testing.T) {
	m := make([]uint16, 4*fullLen)
	for i := range m {
		m[i] = 100
	}

	var got []Frame
	Scan(m, false, func(f Frame) bool {
		got = append(got, f)
		return true
	})
	if len(got) != 0 {
		t.Fatalf("Scan() found %d frames in an all-flat buffer, want 0", len(got))
	}
}

func TestScanIgnoresShortBuffers(t *testing.T) {
	m := make([]uint16, 10)
	called := false
	Scan(m, false, func(f Frame) bool {
		called = true
		return true
	})
	if called {
		t.Fatalf("Scan() invoked emit on a too-short buffer")
	}
}

func TestMessageLenBits(t *testing.T) {
	cases := []struct {
		df   int
		want int
	}{
		{0, 56}, {4, 56}, {5, 56}, {11, 56},
		{16, 112}, {17, 112}, {18, 56}, {19, 112}, {20, 112}, {21, 112}, {24, 56},
	}
	for _, c := range cases {
		if got := MessageLenBits(c.df); got != c.want {
			t.Errorf("MessageLenBits(%d) = %d, want %d", c.df, got, c.want)
		}
	}
}

func TestDetectOutOfPhase(t *testing.T) {
	m := make([]uint16, 20)
	for i := range m {
		m[i] = 10
	}
	// Bias strongly to the right at index 3 relative to 2.
	m[1+3] = 100
	m[1+2] = 10
	if got := detectOutOfPhase(m, 1); got != 1 {
		t.Errorf("detectOutOfPhase() = %d, want 1", got)
	}
}
