// Package config loads the immutable startup configuration for the
// receiver pipeline from flags and environment variables via viper,
// mirroring the layered flag/env approach the pack's CLI entry points
// use. No package-level mutable state is kept here; callers hold onto
// the *Config returned by Load and pass it through explicitly.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// LatLon is an observer position, parsed from the OBSERVER_POS
// "lat,lon" form.
type LatLon struct {
	Lat, Lon float64
}

// Config is the receiver's startup configuration. Every field is set
// once at Load and never mutated afterwards.
type Config struct {
	FixErrors  bool
	Aggressive bool
	Metric     bool

	NetRawPort  int
	NetSBSPort  int
	NetHTTPPort int

	ObserverPos    LatLon
	HasObserverPos bool

	ShowTTLSeconds   int
	RemoveTTLSeconds int

	RegistryCSVPath    string
	RegistryDBPath     string
	RegistryCacheTTLMin int

	AMQPURL      string
	AMQPExchange string
}

// Load builds a Config from viper's merged flag/environment/default
// view. v is typically the root command's viper instance, already
// bound to cobra flags by the caller.
func Load(v *viper.Viper) (*Config, error) {
	c := &Config{
		FixErrors:           v.GetBool("fix-errors"),
		Aggressive:          v.GetBool("aggressive"),
		Metric:              v.GetBool("metric"),
		NetRawPort:          v.GetInt("net-ro-port"),
		NetSBSPort:          v.GetInt("net-sbs-port"),
		NetHTTPPort:         v.GetInt("net-http-port"),
		ShowTTLSeconds:      v.GetInt("show-ttl"),
		RemoveTTLSeconds:    v.GetInt("remove-ttl"),
		RegistryCSVPath:     v.GetString("registry-csv"),
		RegistryDBPath:      v.GetString("registry-db"),
		RegistryCacheTTLMin: v.GetInt("registry-cache-ttl-min"),
		AMQPURL:             v.GetString("amqp-url"),
		AMQPExchange:        v.GetString("amqp-exchange"),
	}

	if raw := v.GetString("observer-pos"); raw != "" {
		pos, err := parseLatLon(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing OBSERVER_POS %q: %w", raw, err)
		}
		c.ObserverPos = pos
		c.HasObserverPos = true
	}

	return c, nil
}

func parseLatLon(raw string) (LatLon, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return LatLon{}, fmt.Errorf("expected \"lat,lon\", got %q", raw)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return LatLon{}, fmt.Errorf("invalid latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return LatLon{}, fmt.Errorf("invalid longitude: %w", err)
	}
	return LatLon{Lat: lat, Lon: lon}, nil
}

// SetDefaults registers this package's defaults onto v, so a Config
// built from an otherwise-empty viper instance (e.g. in tests) is
// still usable.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("fix-errors", true)
	v.SetDefault("aggressive", false)
	v.SetDefault("metric", false)
	v.SetDefault("net-ro-port", 30002)
	v.SetDefault("net-sbs-port", 30003)
	v.SetDefault("net-http-port", 8080)
	v.SetDefault("show-ttl", 60)
	v.SetDefault("remove-ttl", 60)
	v.SetDefault("registry-csv", "aircraft.csv")
	v.SetDefault("registry-db", "aircraft.db")
	v.SetDefault("registry-cache-ttl-min", 5)
	v.SetDefault("amqp-url", "")
	v.SetDefault("amqp-exchange", "go1090.messages")
}
