package beacon

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/epics-go/pva/guid"
)

type recordingSender struct {
	mu   sync.Mutex
	sent [][]byte
}

func (s *recordingSender) SendTo(dst netip.AddrPort, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, payload)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func testDestinations() []netip.AddrPort {
	return []netip.AddrPort{netip.AddrPortFrom(netip.MustParseAddr("10.0.0.255"), 5076)}
}

func TestEmitterSendsWithMonotonicSequence(t *testing.T) {
	g, _ := guid.New()
	sender := &recordingSender{}
	var seqs []uint32
	var mu sync.Mutex
	encode := func(gg guid.GUID, seq uint32) []byte {
		mu.Lock()
		seqs = append(seqs, seq)
		mu.Unlock()
		return []byte{byte(seq)}
	}

	e := NewEmitter(20*time.Millisecond, testDestinations(), g, sender, encode)
	go e.Run()

	time.Sleep(120 * time.Millisecond)
	e.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(seqs) < 2 {
		t.Fatalf("expected at least 2 beacons, got %d", len(seqs))
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Errorf("expected strictly increasing sequence, got %v", seqs)
		}
	}
}

func TestEmitterStopIsImmediate(t *testing.T) {
	g, _ := guid.New()
	sender := &recordingSender{}
	e := NewEmitter(time.Hour, testDestinations(), g, sender, func(guid.GUID, uint32) []byte { return nil })

	go e.Run()
	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		e.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return promptly")
	}
}

func TestEmitterStopBeforeRunDoesNotHang(t *testing.T) {
	g, _ := guid.New()
	sender := &recordingSender{}
	e := NewEmitter(time.Hour, testDestinations(), g, sender, func(guid.GUID, uint32) []byte { return nil })

	done := make(chan struct{})
	go func() {
		e.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop before Run hung")
	}
}
