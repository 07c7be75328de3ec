// Package crc implements the 24-bit Mode S parity check, single- and
// two-bit error correction, and the brute-force ICAO address recovery
// used by downlink formats whose CRC is XORed with the sender's address.
package crc

// LongMsgBits and ShortMsgBits are the two Mode S frame lengths.
const (
	LongMsgBits  = 112
	ShortMsgBits = 56
)

// checksumTable is the 112-entry Mode S parity polynomial table. Every
// element corresponds to a bit position in the message body, counting
// from the first bit after the preamble; computing the checksum is
// xoring together the entries whose bit is set to one. The final 24
// entries are zero because the checksum itself must not affect the
// computation.
var checksumTable = [112]uint32{
	0x3935ea, 0x1c9af5, 0xf1b77e, 0x78dbbf, 0xc397db, 0x9e31e9, 0xb0e2f0, 0x587178,
	0x2c38bc, 0x161c5e, 0x0b0e2f, 0xfa7d13, 0x82c48d, 0xbe9842, 0x5f4c21, 0xd05c14,
	0x682e0a, 0x341705, 0xe5f186, 0x72f8c3, 0xc68665, 0x9cb936, 0x4e5c9b, 0xd8d449,
	0x939020, 0x49c810, 0x24e408, 0x127204, 0x093902, 0x049c81, 0xfdb444, 0x7eda22,
	0x3f6d11, 0xe04c8c, 0x702646, 0x381323, 0xe3f395, 0x8e03ce, 0x4701e7, 0xdc7af7,
	0x91c77f, 0xb719bb, 0xa476d9, 0xadc168, 0x56e0b4, 0x2b705a, 0x15b82d, 0xf52612,
	0x7a9309, 0xc2b380, 0x6159c0, 0x30ace0, 0x185670, 0x0c2b38, 0x06159c, 0x030ace,
	0x018567, 0xff38b7, 0x80665f, 0xbfc92b, 0xa01e91, 0xaff54c, 0x57faa6, 0x2bfd53,
	0xea04ad, 0x8af852, 0x457c29, 0xdd4410, 0x6ea208, 0x375104, 0x1ba882, 0x0dd441,
	0xf91024, 0x7c8812, 0x3e4409, 0xe0d800, 0x706c00, 0x383600, 0x1c1b00, 0x0e0d80,
	0x0706c0, 0x038360, 0x01c1b0, 0x00e0d8, 0x00706c, 0x003836, 0x001c1b, 0xfff409,
	0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000,
	0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000,
	0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000,
}

// Compute returns the 24-bit Mode S parity of the first nbits bits of
// msg. nbits is either ShortMsgBits or LongMsgBits.
func Compute(msg []byte, nbits int) uint32 {
	var offset int
	if nbits != LongMsgBits {
		offset = LongMsgBits - ShortMsgBits
	}

	var c uint32
	for j := 0; j < nbits; j++ {
		byteIdx := j / 8
		bitMask := byte(1) << (7 - uint(j%8))
		if msg[byteIdx]&bitMask != 0 {
			c ^= checksumTable[j+offset]
		}
	}
	return c
}

// trailing returns the 24-bit value carried in the last 3 bytes of an
// nbits-long message.
func trailing(msg []byte, nbits int) uint32 {
	last := nbits/8 - 1
	return uint32(msg[last-2])<<16 | uint32(msg[last-1])<<8 | uint32(msg[last])
}

// Check reports whether the trailing 24 bits of msg match Compute(msg, nbits).
func Check(msg []byte, nbits int) bool {
	return trailing(msg, nbits) == Compute(msg, nbits)
}

// FixSingle tries flipping each bit of msg in turn; on the first flip
// whose resulting checksum matches the trailing 24 bits, it overwrites
// msg with the corrected version and returns the flipped bit's index.
// Returns -1 if no single-bit fix exists.
func FixSingle(msg []byte, nbits int) int {
	aux := make([]byte, nbits/8)
	for j := 0; j < nbits; j++ {
		copy(aux, msg)
		aux[j/8] ^= 1 << (7 - uint(j%8))

		if trailing(aux, nbits) == Compute(aux, nbits) {
			copy(msg, aux)
			return j
		}
	}
	return -1
}

// FixTwo is like FixSingle but tries every unordered pair of bit flips.
// It is slow (O(nbits^2) checksum computations) and is only meant to be
// used in aggressive mode against DF17 frames that fail both the plain
// CRC check and FixSingle. The two flipped indices are returned packed
// as j | (i << 8), with j < i; (-1) is returned on failure.
func FixTwo(msg []byte, nbits int) int {
	aux := make([]byte, nbits/8)
	for j := 0; j < nbits; j++ {
		for i := j + 1; i < nbits; i++ {
			copy(aux, msg)
			aux[j/8] ^= 1 << (7 - uint(j%8))
			aux[i/8] ^= 1 << (7 - uint(i%8))

			if trailing(aux, nbits) == Compute(aux, nbits) {
				copy(msg, aux)
				return j | (i << 8)
			}
		}
	}
	return -1
}

// apFormats are the downlink formats whose trailing 24 bits are the
// parity XORed with the sender's ICAO address (AP, "address/parity"),
// rather than a bare checksum.
var apFormats = map[int]bool{
	0: true, 4: true, 5: true, 16: true, 20: true, 21: true, 24: true,
}

// HasAddressParity reports whether msgtype's CRC is XORed with the
// aircraft address rather than being a bare checksum.
func HasAddressParity(msgtype int) bool {
	return apFormats[msgtype]
}

// BruteForceAddress recovers the ICAO address implied by an
// address-parity message: since (ADDR xor CRC) xor CRC == ADDR, XORing
// the computed checksum into the trailing 3 bytes yields a candidate
// address. The caller supplies a recentlySeen predicate (backed by the
// ICAO cache) to test that candidate; on a hit the recovered address is
// returned with ok=true.
func BruteForceAddress(msg []byte, nbits int, recentlySeen func(addr uint32) bool) (addr uint32, ok bool) {
	if !HasAddressParity(int(msg[0]) >> 3) {
		return 0, false
	}

	c := Compute(msg, nbits)
	last := nbits/8 - 1

	a2 := msg[last-2] ^ byte(c>>16)
	a1 := msg[last-1] ^ byte(c>>8)
	a0 := msg[last] ^ byte(c)

	addr = uint32(a2)<<16 | uint32(a1)<<8 | uint32(a0)
	if recentlySeen(addr) {
		return addr, true
	}
	return 0, false
}
