package magnitude

import (
	"math"
	"testing"
)

func TestTableMatchesFormula(t *testing.T) {
	table := NewTable()
	for i := 0; i <= 128; i++ {
		for q := 0; q <= 128; q++ {
			want := uint16(math.Round(360 * math.Sqrt(float64(i*i+q*q))))
			got := table[129*i+q]
			if got != want {
				t.Fatalf("table[%d,%d] = %d, want %d", i, q, got, want)
			}
		}
	}
}

func TestConvertFoldsAroundCenter(t *testing.T) {
	table := NewTable()

	// 127,127 is the exact center: I=Q=0.
	data := []byte{127, 127, 0, 0, 255, 255}
	m := table.Convert(data)
	if len(m) != 3 {
		t.Fatalf("len(m) = %d, want 3", len(m))
	}
	if m[0] != 0 {
		t.Errorf("center sample magnitude = %d, want 0", m[0])
	}
	// 0 folds to |0-127| = 127; 255 folds to |255-127| = 128 (clamped).
	if m[1] != table[129*127+127] {
		t.Errorf("m[1] = %d, want %d", m[1], table[129*127+127])
	}
	if m[2] != table[129*128+128] {
		t.Errorf("m[2] = %d, want %d", m[2], table[129*128+128])
	}
}

func TestConvertOddLengthIgnoresTrailingByte(t *testing.T) {
	table := NewTable()
	m := table.Convert([]byte{127, 127, 200})
	if len(m) != 1 {
		t.Fatalf("len(m) = %d, want 1", len(m))
	}
}
