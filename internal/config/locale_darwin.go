//go:build darwin

package config

import (
	"os/exec"
	"strings"
)

// platformLocale asks macOS for the user's locale preference (the
// AppleLocale default, e.g. "sv_SE") when the environment names none.
func platformLocale() string {
	out, err := exec.Command("defaults", "read", "-g", "AppleLocale").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
