// Package decode parses a CRC-validated Mode S frame into its typed
// fields: downlink format, capability, ICAO address, and — for DF17
// extended squitters — the extended squitter subtype payload (identity,
// position, velocity).
package decode

import "math"

// Unit is the vertical distance unit an altitude was decoded in.
type Unit int

const (
	UnitFeet Unit = iota
	UnitMeters
)

// Direction is the sign of an east/west or north/south velocity component.
type Direction int

const (
	East Direction = 0
	West Direction = 1
	North Direction = 0
	South Direction = 1
)

// aisCharset is the 6-bit character set used by DF17 identification
// messages to encode callsigns.
var aisCharset = []rune("?ABCDEFGHIJKLMNOPQRSTUVWXYZ????? ???????????????0123456789??????")

// Message holds every field this package can pull out of a Mode S
// frame. Fields not relevant to the frame's downlink format/subtype
// are left at their zero value; callers branch on DF/METype/MESubtype
// to know which fields apply.
type Message struct {
	DF int // Downlink Format
	CA int // Responder capability (DF11)

	AA1, AA2, AA3 uint32 // ICAO address bytes

	// DF4, DF5, DF20, DF21
	FlightStatus int
	DR           int
	UM           int
	Identity     int // 13-bit squawk, decoded from Gillham code

	// DF0, DF4, DF16, DF20
	Altitude int
	AltUnit  Unit

	// DF17 extended squitter
	METype int
	MESub  int

	// DF17 type 1-4: identification
	AircraftType int
	Callsign     string

	// DF17 type 9-18: airborne position
	FFlag        bool // odd (true) / even (false) CPR frame
	TFlag        bool
	RawLatitude  int
	RawLongitude int

	// DF17 type 19 subtype 1-2: airborne velocity
	EWDir          Direction
	EWVelocity     int
	NSDir          Direction
	NSVelocity     int
	VertRateSource int
	VertRateSign   int
	VertRate       int
	Velocity       int
	Heading        int

	// DF17 type 19 subtype 3-4: airspeed and heading
	HeadingValid bool
}

// LenBits returns the frame length in bits for a downlink format.
func LenBits(df int) int {
	switch df {
	case 16, 17, 19, 20, 21:
		return 112
	default:
		return 56
	}
}

// ICAO packs the message's three address bytes into a 24-bit address.
func (m *Message) ICAO() uint32 {
	return m.AA1<<16 | m.AA2<<8 | m.AA3
}

// Decode parses msg (already CRC-validated or address-recovered by the
// caller) into a Message. msg must be at least LenBits(df)/8 bytes,
// where df is the downlink format carried in msg[0].
func Decode(msg []byte) Message {
	var mm Message

	mm.DF = int(msg[0]) >> 3
	mm.CA = int(msg[0]) & 7

	mm.AA1 = uint32(msg[1])
	mm.AA2 = uint32(msg[2])
	mm.AA3 = uint32(msg[3])

	mm.METype = int(msg[4]) >> 3
	mm.MESub = int(msg[4]) & 7

	mm.FlightStatus = int(msg[0]) & 7
	mm.DR = int(msg[1]) >> 3 & 31
	mm.UM = (int(msg[1])&7)<<3 | int(msg[2])>>5

	mm.Identity = decodeIdentity(msg)

	if mm.DF == 0 || mm.DF == 4 || mm.DF == 16 || mm.DF == 20 {
		mm.Altitude, mm.AltUnit = DecodeAC13(msg)
	}

	if mm.DF == 17 {
		decodeExtendedSquitter(&mm, msg)
	}

	return mm
}

// decodeIdentity unpacks the interleaved Gillham-coded squawk carried
// in bits 20-32 of the frame: groups C1-A1-C2-A2-C4-A4-0-B1-D1-B2-D2-B4-D4,
// each triplet of A/B/C/D bits forming one octal digit of the squawk.
func decodeIdentity(msg []byte) int {
	a := (msg[3]&0x80)>>5 | (msg[2]&0x02)>>0 | (msg[2]&0x08)>>3
	b := (msg[3]&0x02)<<1 | (msg[3]&0x08)>>2 | (msg[3]&0x20)>>5
	c := (msg[2]&0x01)<<2 | (msg[2]&0x04)>>1 | (msg[2]&0x10)>>4
	d := (msg[3]&0x01)<<2 | (msg[3]&0x04)>>1 | (msg[3]&0x10)>>4
	return int(a)*1000 + int(b)*100 + int(c)*10 + int(d)
}

// DecodeAC13 decodes the 13-bit AC altitude field used by DF0, DF4,
// DF16, and DF20. Only the Q=1 feet encoding is implemented; the M=1
// (metric) and Q=0 (100-ft Gillham) encodings are not in common use on
// modern transponders and are reported as a zero altitude.
func DecodeAC13(msg []byte) (altitude int, unit Unit) {
	mBit := msg[3] & (1 << 6)
	qBit := msg[3] & (1 << 4)

	if mBit != 0 {
		return 0, UnitMeters
	}
	if qBit == 0 {
		return 0, UnitFeet
	}

	n := int(msg[2]&31)<<6 | int(msg[3]&0x80)>>2 | int(msg[3]&0x20)>>1 | int(msg[3]&15)
	return n*25 - 1000, UnitFeet
}

// DecodeAC12 decodes the 12-bit AC altitude field used by DF17
// airborne position messages.
func DecodeAC12(msg []byte) (altitude int, unit Unit) {
	qBit := msg[5] & 1
	if qBit == 0 {
		return 0, UnitFeet
	}
	n := int(msg[5]>>1)<<4 | int(msg[6]&0xf0)>>4
	return n*25 - 1000, UnitFeet
}

func decodeExtendedSquitter(mm *Message, msg []byte) {
	switch {
	case mm.METype >= 1 && mm.METype <= 4:
		mm.AircraftType = mm.METype - 1
		mm.Callsign = decodeCallsign(msg)

	case mm.METype >= 9 && mm.METype <= 18:
		// Types 20-22 also carry airborne position per the ADS-B
		// standard, but no deployed transponder emits them and the
		// reference decoder never extracts raw lat/lon for them either.
		mm.FFlag = msg[6]&(1<<2) != 0
		mm.TFlag = msg[6]&(1<<3) != 0
		mm.Altitude, mm.AltUnit = DecodeAC12(msg)
		mm.RawLatitude = int(msg[6]&3)<<15 | int(msg[7])<<7 | int(msg[8])>>1
		mm.RawLongitude = int(msg[8]&1)<<16 | int(msg[9])<<8 | int(msg[10])

	case mm.METype == 19 && mm.MESub >= 1 && mm.MESub <= 4:
		decodeVelocity(mm, msg)
	}
}

// decodeCallsign unpacks the eight 6-bit AIS characters carried in an
// identification message's ME field into a trimmed callsign string.
func decodeCallsign(msg []byte) string {
	idx := [8]byte{
		msg[5] >> 2,
		(msg[5]&3)<<4 | msg[6]>>4,
		(msg[6]&15)<<2 | msg[7]>>6,
		msg[7] & 63,
		msg[8] >> 2,
		(msg[8]&3)<<4 | msg[9]>>4,
		(msg[9]&15)<<2 | msg[10]>>6,
		msg[10] & 63,
	}
	runes := make([]rune, 0, 8)
	for _, i := range idx {
		runes = append(runes, aisCharset[i])
	}
	for len(runes) > 0 && runes[len(runes)-1] == ' ' {
		runes = runes[:len(runes)-1]
	}
	return string(runes)
}

func decodeVelocity(mm *Message, msg []byte) {
	if mm.MESub == 1 || mm.MESub == 2 {
		mm.EWDir = Direction((msg[5] & 4) >> 2)
		mm.EWVelocity = int(msg[5]&3)<<8 | int(msg[6])
		mm.NSDir = Direction((msg[7] & 0x80) >> 7)
		mm.NSVelocity = int(msg[7]&0x7f)<<3 | int(msg[8]&0xe0)>>5
		mm.VertRateSource = int(msg[8]&0x10) >> 4
		mm.VertRateSign = int(msg[8]&0x8) >> 3
		mm.VertRate = int(msg[8]&7)<<6 | int(msg[9]&0xfc)>>2

		mm.Velocity = int(math.Sqrt(float64(mm.NSVelocity*mm.NSVelocity + mm.EWVelocity*mm.EWVelocity)))
		if mm.Velocity == 0 {
			mm.Heading = 0
			return
		}

		ew, ns := mm.EWVelocity, mm.NSVelocity
		if mm.EWDir == West {
			ew = -ew
		}
		if mm.NSDir == South {
			ns = -ns
		}
		heading := math.Atan2(float64(ew), float64(ns)) * 360 / (2 * math.Pi)
		if heading < 0 {
			heading += 360
		}
		mm.Heading = int(heading)
		return
	}

	// Subtypes 3-4: airspeed, heading optionally valid.
	mm.HeadingValid = msg[5]&(1<<2) != 0
	mm.Heading = int((360.0 / 128) * float64(int(msg[5]&3)<<5|int(msg[6])>>3))
}

// MEDescription returns a human-readable label for an extended
// squitter type/subtype pair, used by consumers for display only.
func MEDescription(metype, mesub int) string {
	switch {
	case metype >= 1 && metype <= 4:
		return "Aircraft Identification and Category"
	case metype >= 5 && metype <= 8:
		return "Surface Position"
	case metype >= 9 && metype <= 18:
		return "Airborne Position (Baro Altitude)"
	case metype == 19 && mesub >= 1 && mesub <= 4:
		return "Airborne Velocity"
	case metype >= 20 && metype <= 22:
		return "Airborne Position (GNSS Height)"
	case metype == 23 && mesub == 0:
		return "Test Message"
	case metype == 24 && mesub == 1:
		return "Surface System Status"
	case metype == 28 && mesub == 1:
		return "Extended Squitter Aircraft Status (Emergency)"
	case metype == 28 && mesub == 2:
		return "Extended Squitter Aircraft Status (1090ES TCAS RA)"
	case metype == 29 && (mesub == 0 || mesub == 1):
		return "Target State and Status Message"
	case metype == 31 && (mesub == 0 || mesub == 1):
		return "Aircraft Operational Status Message"
	}
	return "Unknown"
}
