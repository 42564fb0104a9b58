package shared

import (
	"testing"

	"github.com/charmbracelet/log"
)

func TestFormatMillis(t *testing.T) {
	tc := []struct {
		name string
		ms   int
		want string
	}{
		{name: "zero", ms: 0, want: "0:00"},
		{name: "seconds", ms: 5_400, want: "0:05"},
		{name: "minutes", ms: 185_000, want: "3:05"},
		{name: "negative clamps", ms: -10, want: "0:00"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatMillis(tt.ms); got != tt.want {
				t.Errorf("FormatMillis() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	if got := ParseLogLevel("DEBUG"); got != log.DebugLevel {
		t.Errorf("expected debug level, got %v", got)
	}
	if got := ParseLogLevel("bogus"); got != log.InfoLevel {
		t.Errorf("expected info level fallback, got %v", got)
	}
}

func TestGenerateState(t *testing.T) {
	a, b := GenerateState(), GenerateState()
	if len(a) != 32 {
		t.Errorf("expected 32 char state, got %d", len(a))
	}
	if a == b {
		t.Error("expected distinct states")
	}
}

func TestDetectPlatform(t *testing.T) {
	orig := getRuntime
	defer func() { getRuntime = orig }()

	tc := []struct {
		name       string
		configured string
		goos       string
		want       Platform
	}{
		{name: "configured ios wins", configured: "iOS", goos: "linux", want: PlatformIOS},
		{name: "configured mobile", configured: "mobile", goos: "darwin", want: PlatformMobile},
		{name: "ios runtime", configured: "", goos: "ios", want: PlatformIOS},
		{name: "android runtime", configured: "", goos: "android", want: PlatformMobile},
		{name: "desktop default", configured: "", goos: "linux", want: PlatformDesktop},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			goos := tt.goos
			getRuntime = func() string { return goos }
			if got := DetectPlatform(tt.configured); got != tt.want {
				t.Errorf("DetectPlatform() = %v, want %v", got, tt.want)
			}
		})
	}

	if !PlatformIOS.IsMobile() || PlatformDesktop.IsMobile() {
		t.Error("IsMobile classification is wrong")
	}
}
