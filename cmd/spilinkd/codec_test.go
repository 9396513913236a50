package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/spilink/internal/testutil/testlog"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestEncodeCommand(t *testing.T) {
	testlog.Start(t)
	out, err := execute(t, "encode", "010203")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(out, "offset=4 length=3 wire_len=8") || !strings.Contains(out, "0400030001020300") {
		t.Fatalf("unexpected encode output: %q", out)
	}
}

func TestDecodeCommand(t *testing.T) {
	testlog.Start(t)
	out, err := execute(t, "decode", "04 00 05 00 aa ab ac ad ae")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(out, "offset=4 length=5") || !strings.Contains(out, "aaabacadae") {
		t.Fatalf("unexpected decode output: %q", out)
	}

	if _, err := execute(t, "decode", "0600050001020304"); err == nil {
		t.Fatalf("expected bad offset to fail")
	}
	if _, err := execute(t, "encode", "zz"); err == nil {
		t.Fatalf("expected bad hex to fail")
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "spilink.toml")
	if _, err := execute(t, "config", "init", "--kind", "loopback", path); err != nil {
		t.Fatalf("config init: %v", err)
	}
	out, err := execute(t, "config", "validate", path)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "validated") {
		t.Fatalf("unexpected validate output: %q", out)
	}
}
