package decode

import "testing"

// buildIdentFrame constructs a DF17 type-4 identification message
// encoding the callsign "KLM1023 " (trailing space trimmed by decode),
// addressed to ICAO 0x484193.
func buildIdentFrame() []byte {
	msg := make([]byte, 14)
	msg[0] = 17<<3 | 5 // DF17, CA=5
	msg[1], msg[2], msg[3] = 0x48, 0x41, 0x93
	msg[4] = 4<<3 | 0 // METype 4 (category D), MESub 0

	text := []rune("KLM1023 ")
	idx := make([]byte, 8)
	for i, r := range text {
		for code, c := range aisCharset {
			if c == r {
				idx[i] = byte(code)
				break
			}
		}
	}
	msg[5] = idx[0]<<2 | idx[1]>>4
	msg[6] = idx[1]<<4 | idx[2]>>2
	msg[7] = idx[2]<<6 | idx[3]
	msg[8] = idx[4]<<2 | idx[5]>>4
	msg[9] = idx[5]<<4 | idx[6]>>2
	msg[10] = idx[6]<<6 | idx[7]
	return msg
}

func TestDecodeIdentificationMessage(t *testing.T) {
	msg := buildIdentFrame()
	mm := Decode(msg)

	if mm.DF != 17 {
		t.Fatalf("DF = %d, want 17", mm.DF)
	}
	if mm.ICAO() != 0x484193 {
		t.Fatalf("ICAO() = %06x, want 484193", mm.ICAO())
	}
	if mm.METype != 4 {
		t.Fatalf("METype = %d, want 4", mm.METype)
	}
	if mm.Callsign != "KLM1023" {
		t.Fatalf("Callsign = %q, want %q", mm.Callsign, "KLM1023")
	}
	if mm.AircraftType != 3 {
		t.Fatalf("AircraftType = %d, want 3", mm.AircraftType)
	}
}

func TestDecodeAC13FeetQ1(t *testing.T) {
	msg := make([]byte, 7)
	// N = 100 -> altitude = 100*25 - 1000 = 1500ft, Q bit set.
	n := 100
	msg[2] = byte(n>>6) & 31
	msg[3] = byte((n&0x20)<<2) | (1 << 4) | byte((n&0x10)<<1) | byte(n&15)

	alt, unit := DecodeAC13(msg)
	if unit != UnitFeet {
		t.Fatalf("unit = %v, want feet", unit)
	}
	if alt != 1500 {
		t.Fatalf("altitude = %d, want 1500", alt)
	}
}

func TestDecodeAC12FeetQ1(t *testing.T) {
	msg := make([]byte, 11)
	n := 40 // altitude = 40*25-1000 = 0ft
	msg[5] = byte(n>>4)<<1 | 1
	msg[6] = byte(n&0xf) << 4

	alt, unit := DecodeAC12(msg)
	if unit != UnitFeet {
		t.Fatalf("unit = %v, want feet", unit)
	}
	if alt != 0 {
		t.Fatalf("altitude = %d, want 0", alt)
	}
}

func TestDecodeIdentitySquawk(t *testing.T) {
	// Squawk 1200 (VFR): A=1,B=2,C=0,D=0.
	msg := make([]byte, 4)
	var a, b, c, d byte = 1, 2, 0, 0

	msg[3] |= (a & 4) << 5
	msg[2] |= (a & 2) << 0
	msg[2] |= (a & 1) << 3
	msg[3] |= (b & 4) >> 1
	msg[3] |= (b & 2) << 2
	msg[3] |= (b & 1) << 5
	msg[2] |= (c & 4) >> 2
	msg[2] |= (c & 2) << 1
	msg[2] |= (c & 1) << 4
	msg[3] |= (d & 4) >> 2
	msg[3] |= (d & 2) << 1
	msg[3] |= (d & 1) << 4

	got := decodeIdentity(msg)
	if got != 1200 {
		t.Fatalf("decodeIdentity() = %d, want 1200", got)
	}
}

func TestDecodeVelocitySubsonic(t *testing.T) {
	msg := make([]byte, 11)
	msg[0] = 17 << 3   // DF17
	msg[4] = 19<<3 | 1 // METype 19, MESub 1
	msg[5] = 0         // EW dir bit clear (East)
	// EW velocity = 100
	msg[5] |= byte((100 >> 8) & 3)
	msg[6] = byte(100 & 0xff)
	// NS velocity = 100, north
	msg[7] = byte((100 >> 3) & 0x7f)
	msg[8] = byte((100 & 7) << 5)

	mm := Decode(msg)
	if mm.METype != 19 || mm.MESub != 1 {
		t.Fatalf("METype/MESub = %d/%d, want 19/1", mm.METype, mm.MESub)
	}
	if mm.Velocity == 0 {
		t.Fatalf("Velocity = 0, want > 0")
	}
	if mm.Heading < 0 || mm.Heading >= 360 {
		t.Fatalf("Heading = %d out of [0,360)", mm.Heading)
	}
}

func TestLenBits(t *testing.T) {
	if LenBits(17) != 112 {
		t.Errorf("LenBits(17) = %d, want 112", LenBits(17))
	}
	if LenBits(11) != 56 {
		t.Errorf("LenBits(11) = %d, want 56", LenBits(11))
	}
}
