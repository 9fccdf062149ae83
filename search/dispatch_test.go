package search

import (
	"net/netip"
	"testing"

	"golang.org/x/time/rate"

	"github.com/epics-go/pva/config"
)

type fakeProvider struct {
	names     map[string]bool
	consulted int
}

func (f *fakeProvider) ClaimsChannel(name string) bool {
	f.consulted++
	return f.names[name]
}

type fakeCodec struct {
	decoded []string
	decErr  error
	encoded [][]string
}

func (c *fakeCodec) DecodeSearchRequest(payload []byte) ([]string, error) {
	return c.decoded, c.decErr
}

func (c *fakeCodec) EncodeSearchReply(claimed []string) []byte {
	c.encoded = append(c.encoded, claimed)
	return []byte("reply")
}

type fakeSender struct {
	sentTo []netip.AddrPort
	sent   [][]byte
}

func (s *fakeSender) SendTo(dst netip.AddrPort, payload []byte) error {
	s.sentTo = append(s.sentTo, dst)
	s.sent = append(s.sent, payload)
	return nil
}

func testSrc() netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr("10.0.0.9"), 12345)
}

func TestHandleClaimedNameRepliesOnce(t *testing.T) {
	cfg, _ := config.FromEnv(nil)
	codec := &fakeCodec{decoded: []string{"chan:x"}}
	sender := &fakeSender{}
	providers := []Provider{&fakeProvider{names: map[string]bool{"chan:x": true}}}

	d := NewDispatcher(cfg, codec, sender, providers, rate.Inf, 0)
	d.Handle(testSrc(), []byte("req"))

	if len(sender.sent) != 1 {
		t.Fatalf("expected exactly one reply, got %d", len(sender.sent))
	}
	if len(codec.encoded) != 1 || codec.encoded[0][0] != "chan:x" {
		t.Errorf("expected claimed names to include chan:x, got %v", codec.encoded)
	}
}

func TestHandleUnclaimedNameNoReply(t *testing.T) {
	cfg, _ := config.FromEnv(nil)
	codec := &fakeCodec{decoded: []string{"chan:y"}}
	sender := &fakeSender{}
	providers := []Provider{&fakeProvider{names: map[string]bool{"chan:x": true}}}

	d := NewDispatcher(cfg, codec, sender, providers, rate.Inf, 0)
	d.Handle(testSrc(), []byte("req"))

	if len(sender.sent) != 0 {
		t.Errorf("expected no reply for an unclaimed name, got %d", len(sender.sent))
	}
}

func TestHandleIgnoredSourceNoReply(t *testing.T) {
	cfg, err := config.FromEnv([]string{"EPICS_PVAS_IGNORE_ADDR_LIST=10.0.0.9"})
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}
	codec := &fakeCodec{decoded: []string{"chan:x"}}
	sender := &fakeSender{}
	providers := []Provider{&fakeProvider{names: map[string]bool{"chan:x": true}}}

	d := NewDispatcher(cfg, codec, sender, providers, rate.Inf, 0)
	d.Handle(testSrc(), []byte("req"))

	if len(sender.sent) != 0 {
		t.Errorf("expected no reply for an ignored source, got %d", len(sender.sent))
	}
}

func TestHandleFirstProviderWinsTieBreak(t *testing.T) {
	cfg, _ := config.FromEnv(nil)
	codec := &fakeCodec{decoded: []string{"chan:x"}}
	sender := &fakeSender{}
	first := &fakeProvider{names: map[string]bool{"chan:x": true}}
	second := &fakeProvider{names: map[string]bool{"chan:x": true}}

	d := NewDispatcher(cfg, codec, sender, []Provider{first, second}, rate.Inf, 0)
	d.Handle(testSrc(), []byte("req"))

	if len(codec.encoded) != 1 || len(codec.encoded[0]) != 1 {
		t.Fatalf("expected exactly one claim, got %v", codec.encoded)
	}
	if first.consulted != 1 || second.consulted != 0 {
		t.Errorf("expected only the first provider to be consulted, got first=%d second=%d", first.consulted, second.consulted)
	}
}
