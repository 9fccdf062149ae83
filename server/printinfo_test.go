package server

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintInfoBeforeInitialize(t *testing.T) {
	ctx := NewContext()
	var buf bytes.Buffer
	ctx.PrintInfo(&buf)

	out := buf.String()
	if !strings.Contains(out, "INITIAL") {
		t.Errorf("expected output to mention state INITIAL, got: %s", out)
	}
}

func TestPrintInfoAfterInitialize(t *testing.T) {
	name := "printinfo-provider"
	registerFakeServerProvider(t, name)

	ctx := NewContext()
	ctx.Codec = fakeSearchCodec{}
	ctx.ConfigOverride = testConfig(name)
	if err := ctx.Initialize(); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	defer ctx.Shutdown()

	var buf bytes.Buffer
	ctx.PrintInfo(&buf)
	out := buf.String()
	if !strings.Contains(out, "READY") {
		t.Errorf("expected output to mention state READY, got: %s", out)
	}
	if !strings.Contains(out, name) {
		t.Errorf("expected output to mention provider %q, got: %s", name, out)
	}
}
