package client

import "testing"

func TestProviderConnectAndDisconnect(t *testing.T) {
	fp := &fakeClientProvider{}
	p := NewProviderFromInstance(fp)

	ch, err := p.Connect("X", DefaultOptions)
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	if ch.Name() != "X" {
		t.Errorf("Name() = %q, want X", ch.Name())
	}
	if !p.Disconnect("X", DefaultOptions) {
		t.Errorf("expected Disconnect to report removal")
	}
}

func TestProviderDisconnectAll(t *testing.T) {
	fp := &fakeClientProvider{}
	p := NewProviderFromInstance(fp)

	p.Connect("X", DefaultOptions)
	p.Connect("Y", DefaultOptions)
	p.DisconnectAll()

	if p.Disconnect("X", DefaultOptions) {
		t.Errorf("expected no entries to remain after DisconnectAll")
	}
}
