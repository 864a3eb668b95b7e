package hostinfo

import (
	"strings"
	"testing"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0B"},
		{512, "512B"},
		{1024, "1.0KiB"},
		{64 << 20, "64.0MiB"},
		{10 << 30, "10.0GiB"},
		{3 << 40, "3.0TiB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.in); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCollect(t *testing.T) {
	info := Collect()
	if info.GOMAXPROCS < 1 {
		t.Errorf("GOMAXPROCS = %d", info.GOMAXPROCS)
	}
	if !strings.Contains(info.String(), info.OS) {
		t.Errorf("banner %q missing OS", info.String())
	}
}

func TestFitsInPageCache(t *testing.T) {
	info := Info{TotalMemory: 16 << 30}
	if !info.FitsInPageCache(10 << 30) {
		t.Error("10GiB should fit in 16GiB")
	}
	if info.FitsInPageCache(32 << 30) {
		t.Error("32GiB should not fit in 16GiB")
	}
	if (Info{}).FitsInPageCache(1) {
		t.Error("unknown memory should never report a fit")
	}
}
