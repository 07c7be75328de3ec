// Package magnitude converts raw interleaved I/Q samples into the
// magnitude vector the demodulator scans for preambles.
package magnitude

import "math"

// TableSize is the number of entries in the magnitude lookup table:
// 129 possible |I| values times 129 possible |Q| values.
const TableSize = 129 * 129

// Table is a precomputed mapping from folded (|I|, |Q|) pairs to a
// 16-bit magnitude sample, indexed by 129*|I| + |Q|. It is built once
// at startup by NewTable and never mutated afterwards.
type Table [TableSize]uint16

// NewTable builds the magnitude lookup table. Every input byte pair is
// first centered on 127 and folded into [0,128], so I and Q each only
// ever take 129 distinct magnitudes.
func NewTable() *Table {
	var t Table
	for i := 0; i < 129; i++ {
		for q := 0; q < 129; q++ {
			t[129*i+q] = uint16(math.Round(360 * math.Sqrt(float64(i*i+q*q))))
		}
	}
	return &t
}

// fold centers a raw unsigned sample on 127 and clamps the magnitude to
// the table's domain.
func fold(b byte) int {
	v := int(b) - 127
	if v < 0 {
		v = -v
	}
	if v > 128 {
		v = 128
	}
	return v
}

// Convert turns a buffer of interleaved unsigned 8-bit I/Q samples into
// a magnitude vector half the length of data. len(data) must be even;
// a trailing odd byte is ignored.
func (t *Table) Convert(data []byte) []uint16 {
	n := len(data) / 2
	m := make([]uint16, n)
	t.ConvertInto(data, m)
	return m
}

// ConvertInto is like Convert but writes into a caller-supplied buffer,
// avoiding an allocation on the hot path. dst must have room for at
// least len(data)/2 samples.
func (t *Table) ConvertInto(data []byte, dst []uint16) {
	n := len(data) / 2
	for i := 0; i < n; i++ {
		iSample := fold(data[2*i])
		qSample := fold(data[2*i+1])
		dst[i] = t[129*iSample+qSample]
	}
}
