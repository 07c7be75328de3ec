package netout

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/regentag/go1090/internal/decode"
)

// SBS transmission types, matching the BaseStation protocol's MSG subtypes.
const (
	sbsIDAndCategory   = 1
	sbsSurfacePosition = 2
	sbsAirbornePos     = 3
	sbsVelocity        = 4
	sbsSurveillance    = 5
	sbsSurveillanceID  = 6
	sbsAllCall         = 8
)

// SBSServer accepts TCP clients and writes 22-field BaseStation CSV
// MSG lines for every message it is given, the same way RawServer fans
// frames out to raw clients.
type SBSServer struct {
	mu      sync.Mutex
	clients map[net.Conn]*bufio.Writer

	sessionID  int
	aircraftID int
}

// NewSBSServer creates an empty SBSServer.
func NewSBSServer() *SBSServer {
	return &SBSServer{
		clients:   make(map[net.Conn]*bufio.Writer),
		sessionID: 1,
	}
}

// Serve accepts connections on ln until it is closed or errors.
func (s *SBSServer) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.clients[conn] = bufio.NewWriter(conn)
		s.aircraftID++
		s.mu.Unlock()
	}
}

// Publish formats mm (and, where relevant, the aircraft's current
// track/speed/position as already merged by the tracker) as a MSG line
// and writes it to every connected client.
func (s *SBSServer) Publish(icao uint32, mm decode.Message, lat, lon float64, hasPosition bool, speed, track, vrate int, now time.Time) {
	line, ok := formatSBS(icao, mm, lat, lon, hasPosition, speed, track, vrate, now)
	if !ok {
		return
	}
	s.broadcast(line + "\r\n")
}

func (s *SBSServer) broadcast(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, w := range s.clients {
		if _, err := w.WriteString(line); err != nil {
			conn.Close()
			delete(s.clients, conn)
			continue
		}
		if err := w.Flush(); err != nil {
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

// ClientCount reports how many clients are currently connected.
func (s *SBSServer) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func transmissionType(mm decode.Message) (int, bool) {
	switch mm.DF {
	case 17, 18:
		switch {
		case mm.METype >= 1 && mm.METype <= 4:
			return sbsIDAndCategory, true
		case mm.METype >= 5 && mm.METype <= 8:
			return sbsSurfacePosition, true
		case mm.METype >= 9 && mm.METype <= 18:
			return sbsAirbornePos, true
		case mm.METype == 19 && mm.MESub >= 1 && mm.MESub <= 4:
			return sbsVelocity, true
		}
		return 0, false
	case 4, 20:
		return sbsSurveillance, true
	case 5, 21:
		return sbsSurveillanceID, true
	case 11:
		return sbsAllCall, true
	default:
		return 0, false
	}
}

// formatSBS builds one 22-field BaseStation MSG line. Date/time fields
// use now for both "generated" and "logged" timestamps, since this
// repo has no separate ingest-vs-decode clock to distinguish them.
func formatSBS(icao uint32, mm decode.Message, lat, lon float64, hasPosition bool, speed, track, vrate int, now time.Time) (string, bool) {
	tt, ok := transmissionType(mm)
	if !ok {
		return "", false
	}

	date := now.Format("2006/01/02")
	clock := now.Format("15:04:05.000")

	var callsign, altitude, groundSpeed, trackStr, latStr, lonStr, vrateStr, squawk string
	var alert, emergency, spi, onGround string

	switch tt {
	case sbsIDAndCategory:
		callsign = strings.TrimRight(mm.Callsign, " ")
		alert, emergency, spi, onGround = "0", "0", "0", "0"
	case sbsAirbornePos:
		altitude = strconv.Itoa(mm.Altitude)
		if hasPosition {
			latStr = fmt.Sprintf("%.6f", lat)
			lonStr = fmt.Sprintf("%.6f", lon)
		}
		alert, emergency, spi, onGround = "0", "0", "0", "0"
	case sbsVelocity:
		groundSpeed = strconv.Itoa(speed)
		trackStr = strconv.Itoa(track)
		vrateStr = strconv.Itoa(vrate)
		alert, emergency, spi, onGround = "0", "0", "0", "0"
	case sbsSurveillance, sbsSurveillanceID:
		altitude = strconv.Itoa(mm.Altitude)
		squawk = fmt.Sprintf("%04d", mm.Identity)
		alert, emergency, spi, onGround = flightStatusFlags(mm.FlightStatus, mm.Identity)
	}

	fields := []string{
		"MSG",
		strconv.Itoa(tt),
		"1", // SessionID
		"1", // AircraftID
		fmt.Sprintf("%06X", icao),
		"1", // FlightID
		date, clock,
		date, clock,
		callsign,
		altitude,
		groundSpeed,
		trackStr,
		latStr,
		lonStr,
		vrateStr,
		squawk,
		alert,
		emergency,
		spi,
		onGround,
	}
	return strings.Join(fields, ","), true
}

// flightStatusFlags derives the BaseStation Alert/Emergency/SPI/IsOnGround
// columns from a DF4/5/20/21 message's flight-status field and decoded
// squawk. Only the surveillance DFs carry a flight-status field, so this
// is only called for those; DF17 identification, airborne position and
// velocity lines report all four as the literal zero instead, and the
// surface position and all-call lines leave the four columns empty.
func flightStatusFlags(fs, squawk int) (alert, emergency, spi, onGround string) {
	switch fs {
	case 0:
		alert, spi, onGround = "0", "0", "0"
	case 1:
		alert, spi, onGround = "0", "0", "1"
	case 2:
		alert, spi, onGround = "1", "0", "0"
	case 3:
		alert, spi, onGround = "1", "0", "1"
	case 4:
		alert, spi, onGround = "1", "1", "0"
	case 5:
		alert, spi, onGround = "0", "1", "0"
	default:
		alert, spi, onGround = "0", "0", "0"
	}

	switch squawk {
	case 7500, 7600, 7700:
		emergency = "1"
	default:
		emergency = "0"
	}
	return
}
