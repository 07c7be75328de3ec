// Package registry looks up the registration, manufacturer, and ICAO
// type for an aircraft by its 24-bit address. The authoritative source
// is a CSV dump of the public aircraft database; on first run it is
// mirrored into a SQLite file so later startups skip the CSV parse,
// and a small in-process TTL cache sits in front of the database so
// repeated lookups for the same aircraft during a session don't hit
// disk each time.
package registry

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	_ "modernc.org/sqlite"
)

// Entry is what the registry knows about one aircraft.
type Entry struct {
	ICAO         uint32
	Registration string
	Manufacturer string
	ICAOType     string
	Callsign     string
}

// Registry is a read-only ICAO-address lookup. Loads happen once at
// Open; there is no write path during normal operation.
type Registry struct {
	db    *sql.DB
	cache *gocache.Cache
}

// Open loads the registry, mirroring csvPath into a SQLite database at
// dbPath if that mirror doesn't already exist or is older than the
// CSV. cacheTTL controls how long a looked-up entry (including a
// confirmed miss) is cached in memory before the next lookup goes back
// to SQLite.
func Open(csvPath, dbPath string, cacheTTL time.Duration) (*Registry, error) {
	needsLoad, err := mirrorIsStale(csvPath, dbPath)
	if err != nil {
		return nil, fmt.Errorf("checking registry mirror: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS aircraft (
			icao TEXT PRIMARY KEY,
			registration TEXT,
			manufacturer TEXT,
			icao_type TEXT,
			callsign TEXT
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create registry table: %w", err)
	}

	if needsLoad {
		if err := rebuildMirror(db, csvPath); err != nil {
			db.Close()
			return nil, fmt.Errorf("rebuild registry mirror: %w", err)
		}
	}

	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Registry{
		db:    db,
		cache: gocache.New(cacheTTL, 2*cacheTTL),
	}, nil
}

// Close releases the underlying database handle.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Lookup returns the registry entry for an ICAO address, if known.
func (r *Registry) Lookup(icao uint32) (Entry, bool) {
	key := fmt.Sprintf("%06X", icao)
	if cached, found := r.cache.Get(key); found {
		e, ok := cached.(Entry)
		return e, ok
	}

	row := r.db.QueryRow(
		`SELECT registration, manufacturer, icao_type, callsign FROM aircraft WHERE icao = ?`,
		key,
	)
	e := Entry{ICAO: icao}
	if err := row.Scan(&e.Registration, &e.Manufacturer, &e.ICAOType, &e.Callsign); err != nil {
		// A miss is cached as nil, which the Entry assertion above reports as not found.
		r.cache.Set(key, nil, gocache.DefaultExpiration)
		return Entry{}, false
	}

	r.cache.Set(key, e, gocache.DefaultExpiration)
	return e, true
}

func mirrorIsStale(csvPath, dbPath string) (bool, error) {
	csvInfo, err := os.Stat(csvPath)
	if os.IsNotExist(err) {
		return false, nil // nothing to mirror; Lookup will simply miss everything
	}
	if err != nil {
		return false, err
	}

	dbInfo, err := os.Stat(dbPath)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	return csvInfo.ModTime().After(dbInfo.ModTime()), nil
}

// rebuildMirror truncates and repopulates the aircraft table from the
// CSV at csvPath. Columns are located by their header names, as used
// by the opensky-network.org aircraft database (icao24, registration,
// manufacturername, typecode, operatorcallsign), in any order; a
// missing column reads as empty.
func rebuildMirror(db *sql.DB, csvPath string) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS aircraft (
			icao TEXT PRIMARY KEY,
			registration TEXT,
			manufacturer TEXT,
			icao_type TEXT,
			callsign TEXT
		)`); err != nil {
		return err
	}
	if _, err := db.Exec(`DELETE FROM aircraft`); err != nil {
		return err
	}

	f, err := os.Open(csvPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	col := columnIndex(header)

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO aircraft (icao, registration, manufacturer, icao_type, callsign) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			tx.Rollback()
			return err
		}
		icao := strings.ToUpper(field(rec, col, "icao24"))
		if icao == "" {
			continue
		}
		if _, err := stmt.Exec(
			icao,
			field(rec, col, "registration"),
			field(rec, col, "manufacturername"),
			field(rec, col, "typecode"),
			field(rec, col, "operatorcallsign"),
		); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return idx
}

func field(rec []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}
