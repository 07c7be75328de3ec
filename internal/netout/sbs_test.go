package netout

import (
	"strings"
	"testing"
	"time"

	"github.com/regentag/go1090/internal/decode"
)

func TestFormatSBSIdentification(t *testing.T) {
	mm := decode.Message{DF: 17, METype: 4, Callsign: "KLM1023"}
	line, ok := formatSBS(0x48402c, mm, 0, 0, false, 0, 0, 0, time.Now())
	if !ok {
		t.Fatalf("formatSBS() ok = false, want true")
	}
	fields := strings.Split(line, ",")
	if len(fields) != 22 {
		t.Fatalf("formatSBS() produced %d fields, want 22", len(fields))
	}
	if fields[0] != "MSG" || fields[1] != "1" {
		t.Fatalf("fields[0:2] = %v, want [MSG 1]", fields[:2])
	}
	if fields[4] != "48402C" {
		t.Fatalf("hex ident field = %q, want 48402C", fields[4])
	}
	if fields[10] != "KLM1023" {
		t.Fatalf("callsign field = %q, want KLM1023", fields[10])
	}
}

func TestFormatSBSAirbornePosition(t *testing.T) {
	mm := decode.Message{DF: 17, METype: 11, Altitude: 35000}
	line, ok := formatSBS(0x11, mm, 52.1, 4.2, true, 0, 0, 0, time.Now())
	if !ok {
		t.Fatalf("formatSBS() ok = false, want true")
	}
	fields := strings.Split(line, ",")
	if fields[1] != "3" {
		t.Fatalf("transmission type = %q, want 3 (airborne position)", fields[1])
	}
	if fields[11] != "35000" {
		t.Fatalf("altitude field = %q, want 35000", fields[11])
	}
	if fields[14] == "" || fields[15] == "" {
		t.Fatalf("lat/lon fields empty, want populated when hasPosition")
	}
}

func TestFormatSBSRejectsUnknownSubtype(t *testing.T) {
	mm := decode.Message{DF: 17, METype: 23} // test message type, no SBS mapping
	if _, ok := formatSBS(0x1, mm, 0, 0, false, 0, 0, 0, time.Now()); ok {
		t.Fatalf("formatSBS() ok = true for an unmapped ME type")
	}
}
