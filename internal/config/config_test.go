package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestLoadAppliesDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	c, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.NetRawPort != 30002 {
		t.Errorf("NetRawPort = %d, want 30002", c.NetRawPort)
	}
	if !c.FixErrors {
		t.Errorf("FixErrors = false, want true")
	}
	if c.HasObserverPos {
		t.Errorf("HasObserverPos = true with no OBSERVER_POS set")
	}
}

func TestLoadParsesObserverPos(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("observer-pos", "52.3, 4.76")

	c, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !c.HasObserverPos {
		t.Fatalf("HasObserverPos = false, want true")
	}
	if c.ObserverPos.Lat != 52.3 || c.ObserverPos.Lon != 4.76 {
		t.Fatalf("ObserverPos = %+v, want {52.3 4.76}", c.ObserverPos)
	}
}

func TestLoadRejectsMalformedObserverPos(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("observer-pos", "not-a-position")

	if _, err := Load(v); err == nil {
		t.Fatalf("Load() error = nil, want an error for a malformed OBSERVER_POS")
	}
}
