package server

import (
	"testing"
	"time"

	"github.com/epics-go/pva/config"
	"github.com/epics-go/pva/provider"
)

type fakeServerChannelProvider struct {
	name     string
	destroys int
}

func (p *fakeServerChannelProvider) Name() string             { return p.name }
func (p *fakeServerChannelProvider) ClaimsChannel(string) bool { return false }
func (p *fakeServerChannelProvider) Destroy()                  { p.destroys++ }

type fakeSearchCodec struct{}

func (fakeSearchCodec) DecodeSearchRequest(payload []byte) ([]string, error) { return nil, nil }
func (fakeSearchCodec) EncodeSearchReply(claimed []string) []byte            { return nil }

func registerFakeServerProvider(t *testing.T, name string) *fakeServerChannelProvider {
	t.Helper()
	p := &fakeServerChannelProvider{name: name}
	if err := provider.Servers().Register(name, func(cfg config.Snapshot) (provider.ServerChannelProvider, error) {
		return p, nil
	}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	t.Cleanup(func() { provider.Servers().Unregister(name) })
	return p
}

func testConfig(providerName string) *config.Snapshot {
	cfg, _ := config.FromEnv([]string{
		"EPICS_PVA_SERVER_PORT=0",
		"EPICS_PVA_BROADCAST_PORT=0",
		"EPICS_PVA_PROVIDER_NAMES=" + providerName,
		"EPICS_PVA_BEACON_PERIOD=0.05",
	})
	return &cfg
}

func TestInitializeTransitionsToReady(t *testing.T) {
	name := "ctx-ready"
	registerFakeServerProvider(t, name)

	ctx := NewContext()
	ctx.Codec = fakeSearchCodec{}
	ctx.ConfigOverride = testConfig(name)

	if err := ctx.Initialize(); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	defer ctx.Shutdown()

	if ctx.State() != Ready {
		t.Errorf("State() = %v, want Ready", ctx.State())
	}
	if ctx.GetGUID().IsZero() {
		t.Errorf("expected a non-zero GUID after Initialize")
	}
}

func TestDoubleInitializeFails(t *testing.T) {
	name := "ctx-double-init"
	registerFakeServerProvider(t, name)

	ctx := NewContext()
	ctx.Codec = fakeSearchCodec{}
	ctx.ConfigOverride = testConfig(name)
	if err := ctx.Initialize(); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	defer ctx.Shutdown()

	if err := ctx.Initialize(); err == nil {
		t.Errorf("expected second Initialize to fail")
	}
}

func TestRunAndShutdownLifecycle(t *testing.T) {
	name := "ctx-lifecycle"
	registerFakeServerProvider(t, name)

	ctx := NewContext()
	ctx.Codec = fakeSearchCodec{}
	ctx.ConfigOverride = testConfig(name)
	if err := ctx.Initialize(); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}

	runDone := make(chan error, 1)
	go func() { runDone <- ctx.Run(0) }()

	time.Sleep(50 * time.Millisecond)
	if err := ctx.Shutdown(); err != nil {
		t.Errorf("Shutdown error: %v", err)
	}

	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("Run() returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not return after Shutdown")
	}

	if ctx.State() != Stopped {
		t.Errorf("State() = %v, want Stopped", ctx.State())
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	name := "ctx-idempotent-shutdown"
	registerFakeServerProvider(t, name)

	ctx := NewContext()
	ctx.Codec = fakeSearchCodec{}
	ctx.ConfigOverride = testConfig(name)
	if err := ctx.Initialize(); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}

	if err := ctx.Shutdown(); err != nil {
		t.Errorf("first Shutdown error: %v", err)
	}
	if err := ctx.Shutdown(); err != nil {
		t.Errorf("second Shutdown error: %v", err)
	}
	if ctx.State() != Stopped {
		t.Errorf("State() = %v, want Stopped", ctx.State())
	}
}

func TestConcurrentRunFails(t *testing.T) {
	name := "ctx-concurrent-run"
	registerFakeServerProvider(t, name)

	ctx := NewContext()
	ctx.Codec = fakeSearchCodec{}
	ctx.ConfigOverride = testConfig(name)
	if err := ctx.Initialize(); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	defer ctx.Shutdown()

	go ctx.Run(1)
	time.Sleep(20 * time.Millisecond)

	if err := ctx.Run(0); err == nil {
		t.Errorf("expected a concurrent Run to fail")
	}
}
