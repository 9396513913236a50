//go:build mips || mipsle || mips64 || mips64le || ppc64 || ppc64le

package spidev

import (
	"testing"

	"github.com/danmuck/spilink/internal/testutil/testlog"
)

func TestIoctlRequestNumbers(t *testing.T) {
	testlog.Start(t)
	cases := map[string]struct {
		got, want uintptr
	}{
		"mode":          {reqWrMode, 0x80016B01},
		"bits_per_word": {reqWrBitsPerWord, 0x80016B03},
		"max_speed_hz":  {reqWrMaxSpeedHz, 0x80046B04},
		"message_1":     {reqMessage(1), 0x80206B00},
		"message_2":     {reqMessage(2), 0x80406B00},
	}
	for name, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("%s: got %#x want %#x", name, tc.got, tc.want)
		}
	}
}
