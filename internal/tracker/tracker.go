// Package tracker maintains the in-memory table of aircraft currently
// being tracked: merging decoded messages into per-ICAO state, pairing
// up even/odd CPR frames into a resolved position, dead-reckoning a
// position estimate between fixes, and evicting aircraft that have
// gone quiet.
package tracker

import (
	"fmt"
	"sync"
	"time"

	"github.com/regentag/go1090/internal/decode"
)

// ShowState mirrors the reference tracker's display lifecycle: an
// aircraft is flagged FirstTime on the update that creates it, Normal
// from the next maintenance pass on, and LastTime while maintenance
// finds it quiet for longer than the show TTL (a LastTime aircraft that
// is heard again returns to Normal on the next pass). It is evicted
// outright, with no further display state, once it has been quiet past
// the remove TTL.
type ShowState int

const (
	ShowFirstTime ShowState = iota
	ShowNormal
	ShowLastTime
)

// DefaultShowTTL is how long an aircraft may go without a new message
// before maintenance marks it last-time-seen.
const DefaultShowTTL = 60 * time.Second

// DefaultRemoveTTL is how long an aircraft may go without a new message
// before maintenance evicts it outright.
const DefaultRemoveTTL = 60 * time.Second

// Aircraft is the tracked state for one ICAO address.
type Aircraft struct {
	Addr    uint32
	HexAddr string

	Callsign string
	Altitude int
	Speed    int
	Track    int
	HeadingValid bool

	Seen     time.Time
	Messages int64
	Show     ShowState

	Lat, Lon  float64
	HasPosition bool

	evenCPRLat, evenCPRLon int
	oddCPRLat, oddCPRLon   int
	evenCPRTime, oddCPRTime time.Time

	estimatedAt time.Time
}

func newAircraft(addr uint32, now time.Time) *Aircraft {
	return &Aircraft{
		Addr:    addr,
		HexAddr: fmt.Sprintf("%06X", addr),
		Seen:    now,
		Show:    ShowFirstTime,
	}
}

// Sky is the ICAO-keyed table of tracked aircraft.
type Sky struct {
	mu        sync.Mutex
	aircrafts map[uint32]*Aircraft
	showTTL   time.Duration
	removeTTL time.Duration
}

// NewSky creates an empty Sky. A showTTL or removeTTL of zero selects
// the matching Default*TTL constant.
func NewSky(showTTL, removeTTL time.Duration) *Sky {
	if showTTL <= 0 {
		showTTL = DefaultShowTTL
	}
	if removeTTL <= 0 {
		removeTTL = DefaultRemoveTTL
	}
	return &Sky{
		aircrafts: make(map[uint32]*Aircraft),
		showTTL:   showTTL,
		removeTTL: removeTTL,
	}
}

// Count returns the number of aircraft currently tracked, including
// ones pending removal.
func (s *Sky) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.aircrafts)
}

// Receive merges a decoded, CRC-valid message into the aircraft table,
// creating a new entry on first sight of its ICAO address, and returns
// the aircraft it updated.
func (s *Sky) Receive(mm decode.Message, now time.Time) *Aircraft {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := mm.ICAO()
	a, ok := s.aircrafts[addr]
	if !ok {
		a = newAircraft(addr, now)
		s.aircrafts[addr] = a
	}

	a.Seen = now
	a.Messages++

	switch mm.DF {
	case 0, 4, 20:
		a.Altitude = mm.Altitude

	case 17:
		switch {
		case mm.METype >= 1 && mm.METype <= 4:
			a.Callsign = mm.Callsign

		case mm.METype >= 9 && mm.METype <= 18:
			a.Altitude = mm.Altitude
			if mm.FFlag {
				a.oddCPRLat, a.oddCPRLon = mm.RawLatitude, mm.RawLongitude
				a.oddCPRTime = now
			} else {
				a.evenCPRLat, a.evenCPRLon = mm.RawLatitude, mm.RawLongitude
				a.evenCPRTime = now
			}
			s.tryResolvePosition(a)

		case mm.METype == 19 && (mm.MESub == 1 || mm.MESub == 2):
			a.Speed = mm.Velocity
			a.Track = mm.Heading
			a.HeadingValid = true

		case mm.METype == 19 && (mm.MESub == 3 || mm.MESub == 4):
			a.Track = mm.Heading
			a.HeadingValid = mm.HeadingValid
		}
	}

	return a
}

// maxCPRPairAge is the longest an even/odd CPR pair may be apart in
// time and still be combined into a position fix.
const maxCPRPairAge = 10 * time.Second

// tryResolvePosition attempts a global CPR decode from a's most recent
// even/odd pair, picking whichever of the two frames is newer as the
// "reference" frame per the reference decoder's convention. Caller
// must hold s.mu.
func (s *Sky) tryResolvePosition(a *Aircraft) {
	if a.evenCPRTime.IsZero() || a.oddCPRTime.IsZero() {
		return
	}

	age := a.evenCPRTime.Sub(a.oddCPRTime)
	if age < 0 {
		age = -age
	}
	if age > maxCPRPairAge {
		return
	}

	lat, lon, ok := decodeGlobalCPR(cprPair{
		evenLat:     a.evenCPRLat,
		evenLon:     a.evenCPRLon,
		oddLat:      a.oddCPRLat,
		oddLon:      a.oddCPRLon,
		evenIsNewer: a.evenCPRTime.After(a.oddCPRTime),
	})
	if !ok {
		return
	}

	a.Lat, a.Lon = lat, lon
	a.HasPosition = true
	a.estimatedAt = now2(a)
}

// now2 returns the newer of the pair's two timestamps, used as the
// position fix's effective time for subsequent dead-reckoning.
func now2(a *Aircraft) time.Time {
	if a.evenCPRTime.After(a.oddCPRTime) {
		return a.evenCPRTime
	}
	return a.oddCPRTime
}

// Estimate dead-reckons a's displayed position forward to now, using
// its last resolved fix, track, and speed. It is a no-op (returns the
// aircraft's last known position unchanged) unless the aircraft has a
// resolved position, a nonzero speed, and an explicitly valid heading
// — position estimation without a trustworthy heading would silently
// fabricate a direction of travel, which this package's Open Question
// resolution (see DESIGN.md) decided against.
func (s *Sky) Estimate(addr uint32, now time.Time) (lat, lon float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, found := s.aircrafts[addr]
	if !found || !a.HasPosition {
		return 0, 0, false
	}
	if a.Speed == 0 || !a.HeadingValid {
		return a.Lat, a.Lon, true
	}

	elapsed := now.Sub(a.estimatedAt).Seconds()
	if elapsed <= 0 {
		return a.Lat, a.Lon, true
	}

	p := estimateForward(position{Lat: a.Lat, Lon: a.Lon}, float64(a.Track), float64(a.Speed), elapsed)
	return p.Lat, p.Lon, true
}

// Maintain advances every aircraft's ShowState and evicts any aircraft
// that has gone quiet past the remove TTL. A record older than the show
// TTL but not yet past the remove TTL is tagged LastTime; a record past
// the remove TTL is deleted unconditionally in the same pass that
// notices it, regardless of its current ShowState, so that after this
// call returns no tracked aircraft has gone quiet for longer than the
// remove TTL.
func (s *Sky) Maintain(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for addr, a := range s.aircrafts {
		age := now.Sub(a.Seen)

		switch {
		case age > s.removeTTL:
			delete(s.aircrafts, addr)
		case age > s.showTTL:
			a.Show = ShowLastTime
		case a.Show != ShowNormal:
			a.Show = ShowNormal
		}
	}
}

// Snapshot returns a copy of every tracked aircraft, for consumers
// that serialize or render the current table.
func (s *Sky) Snapshot() []Aircraft {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Aircraft, 0, len(s.aircrafts))
	for _, a := range s.aircrafts {
		out = append(out, *a)
	}
	return out
}
