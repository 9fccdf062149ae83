package server

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBeaconServerStatusProviderRecordsBeacons(t *testing.T) {
	p := NewBeaconServerStatusProvider()
	p.RecordBeacon(1)
	p.RecordBeacon(2)

	if got := testutil.ToFloat64(p.beaconsTotal); got != 2 {
		t.Errorf("expected beaconsTotal to be 2, got %v", got)
	}
	if got := testutil.ToFloat64(p.lastSeq); got != 2 {
		t.Errorf("expected lastSeq to be 2, got %v", got)
	}
}

func TestBeaconServerStatusProviderStartStop(t *testing.T) {
	p := NewBeaconServerStatusProvider()
	p.Listen = "127.0.0.1:0"
	if err := p.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("Stop error: %v", err)
	}
}
