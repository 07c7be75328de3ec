// Command console is an interactive terminal viewer for a running
// go1090 receiver: it connects to the SBS feed, reconstructs aircraft
// state from the stream, and renders a live-updating table the way
// the reference gocui dashboard does. Every aircraft row is drawn in
// the same colour; rows are not coloured by show state.
package main

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jroimartin/gocui"
	. "github.com/logrusorgru/aurora"

	"github.com/regentag/go1090/internal/tracker"
)

// consoleAircraft is the subset of SBS fields the console needs to
// render one row; it is updated in place from each MSG line (fields a
// line leaves empty keep their earlier value) rather than sharing
// internal/tracker.Aircraft, since the console is a
// separate process reading the wire feed, not the in-process tracker.
type consoleAircraft struct {
	Hex      string
	Callsign string
	Altitude int
	Speed    int
	Track    int
	Lat, Lon float64
	Seen     time.Time
}

// table is the console's view of the fleet, keyed by hex ICAO address.
type table struct {
	mu        sync.Mutex
	aircrafts map[string]*consoleAircraft
}

func newTable() *table {
	return &table{aircrafts: make(map[string]*consoleAircraft)}
}

func (t *table) apply(fields []string) {
	if len(fields) < 22 || fields[0] != "MSG" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	hex := fields[4]
	a, ok := t.aircrafts[hex]
	if !ok {
		a = &consoleAircraft{Hex: hex}
		t.aircrafts[hex] = a
	}
	a.Seen = time.Now()

	if cs := strings.TrimSpace(fields[10]); cs != "" {
		a.Callsign = cs
	}
	if alt, err := strconv.Atoi(fields[11]); err == nil {
		a.Altitude = alt
	}
	if spd, err := strconv.Atoi(fields[12]); err == nil {
		a.Speed = spd
	}
	if trk, err := strconv.Atoi(fields[13]); err == nil {
		a.Track = trk
	}
	if lat, err := strconv.ParseFloat(fields[14], 64); err == nil {
		a.Lat = lat
	}
	if lon, err := strconv.ParseFloat(fields[15], 64); err == nil {
		a.Lon = lon
	}
}

func (t *table) sorted() []consoleAircraft {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]consoleAircraft, 0, len(t.aircrafts))
	for _, a := range t.aircrafts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex < out[j].Hex })
	return out
}

// evict drops any aircraft not seen within ttl, mirroring the
// receiver-side tracker.DefaultRemoveTTL lifecycle at the display layer.
func (t *table) evict(ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for hex, a := range t.aircrafts {
		if time.Since(a.Seen) > ttl {
			delete(t.aircrafts, hex)
		}
	}
}

func (t *table) update(g *gocui.Gui) error {
	s, err := g.View("status")
	if err != nil {
		return nil
	}
	s.Clear()
	fmt.Fprintf(s, " A/C: %02d  LAST UPDATE: %s\n",
		Green(len(t.aircrafts)),
		Bold(Green(time.Now().Format("2006-01-02 15:04:05"))))

	l, err := g.View("list")
	if err != nil {
		return nil
	}
	l.Clear()

	fmt.Fprintln(l, " ICAO ADDR    FLIGHT     ALT    SPD    HDG     LAT     LON  SEEN")
	fmt.Fprintln(l, " ===================================================================")

	for _, a := range t.sorted() {
		fmt.Fprintln(l, Sprintf(Yellow(" %6s       %9s  %-5d  %-5d  %-3d  %6.2f  %6.2f  %s"),
			a.Hex, a.Callsign, a.Altitude, a.Speed, a.Track, a.Lat, a.Lon,
			a.Seen.Format("15:04:05")))
	}

	return nil
}

func layout(g *gocui.Gui) error {
	const maxX = 80
	_, maxY := g.Size()

	v, err := g.SetView("status", 0, 0, maxX-2, 2)
	if err != nil && err != gocui.ErrUnknownView {
		return err
	}
	v.Title = " STATUS "
	fmt.Fprintln(v, " A/C: --  LAST UPDATE: 0000-00-00 00:00:00")

	v, err = g.SetView("list", 0, 3, maxX-2, maxY-1)
	if err != nil && err != gocui.ErrUnknownView {
		return err
	}
	v.Title = " A/C "
	return nil
}

func quit(g *gocui.Gui, v *gocui.View) error {
	return gocui.ErrQuit
}

// readSBSFeed dials addr and applies every MSG line it receives to t
// until the connection drops, then retries after a short backoff —
// the console should keep trying to reconnect rather than exit if the
// receiver process restarts.
func readSBSFeed(addr string, t *table) {
	for {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			time.Sleep(2 * time.Second)
			continue
		}

		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			t.apply(strings.Split(strings.TrimSpace(scanner.Text()), ","))
		}
		conn.Close()
		time.Sleep(2 * time.Second)
	}
}

func main() {
	addr := "127.0.0.1:30003"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	t := newTable()
	go readSBSFeed(addr, t)
	go func() {
		for range time.Tick(time.Second) {
			t.evict(tracker.DefaultRemoveTTL)
		}
	}()

	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		log.Panicln(err)
	}
	defer g.Close()

	g.SetManagerFunc(layout)

	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		log.Panicln(err)
	}

	go func() {
		for range time.Tick(500 * time.Millisecond) {
			g.Update(t.update)
		}
	}()

	if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
		log.Panicln(err)
	}
}
