package platform

import (
	"fmt"
	"runtime"

	"github.com/adrg/xdg"
)

// OS returns the platform family name used in lift manifests and
// {scie.platform.os} expansions.
func OS() string {
	switch runtime.GOOS {
	case "darwin":
		return "macos"
	default:
		return runtime.GOOS
	}
}

// Arch returns the CPU architecture name used in {scie.platform.arch}
// expansions. The names follow the uname -m convention.
func Arch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "arm":
		return "armv7l"
	case "ppc64le":
		return "powerpc64"
	default:
		return runtime.GOARCH
	}
}

// Current returns the combined platform identifier, e.g. "linux-x86_64".
func Current() string {
	return fmt.Sprintf("%s-%s", OS(), Arch())
}

// UserCacheDir returns the per-OS user cache directory: $XDG_CACHE_HOME or
// ~/.cache on Linux, ~/Library/Caches on macOS, %LOCALAPPDATA% on Windows.
func UserCacheDir() (string, error) {
	cacheHome := xdg.CacheHome
	if cacheHome == "" {
		return "", fmt.Errorf("no user cache directory is defined for this platform")
	}
	return cacheHome, nil
}

// ExeExt returns the executable file extension for the current platform,
// including the leading dot when one exists.
func ExeExt() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
