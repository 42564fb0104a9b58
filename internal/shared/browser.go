package shared

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

var getRuntime = func() string { return runtime.GOOS }

// Platform identifies the audio policy class of the host.
type Platform string

const (
	PlatformDesktop Platform = "desktop"
	PlatformMobile  Platform = "mobile"
	PlatformIOS     Platform = "ios"
)

// IsMobile reports whether the platform restricts unprompted audio.
func (p Platform) IsMobile() bool {
	return p == PlatformMobile || p == PlatformIOS
}

// DetectPlatform resolves the configured platform, falling back to the host OS.
func DetectPlatform(configured string) Platform {
	switch Platform(strings.ToLower(strings.TrimSpace(configured))) {
	case PlatformDesktop:
		return PlatformDesktop
	case PlatformMobile:
		return PlatformMobile
	case PlatformIOS:
		return PlatformIOS
	}

	switch getRuntime() {
	case "ios":
		return PlatformIOS
	case "android":
		return PlatformMobile
	default:
		return PlatformDesktop
	}
}

// OpenBrowser opens the default system browser to the specified URL.
//
// Supports macOS, Linux, and Windows platforms.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	rt := getRuntime()
	switch rt {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", rt)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	return nil
}
