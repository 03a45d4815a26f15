//go:build windows

package config

import (
	"syscall"
	"unsafe"
)

var (
	kernel32              = syscall.NewLazyDLL("kernel32.dll")
	procUserDefaultLocale = kernel32.NewProc("GetUserDefaultLocaleName")
)

// platformLocale asks Windows for the user's default locale name (already
// BCP-47, e.g. "sv-SE") when the environment names none.
func platformLocale() string {
	const maxLen = 85 // LOCALE_NAME_MAX_LENGTH
	buf := make([]uint16, maxLen)
	ret, _, _ := procUserDefaultLocale.Call(uintptr(unsafe.Pointer(&buf[0])), uintptr(maxLen))
	if ret == 0 {
		return ""
	}
	return syscall.UTF16ToString(buf)
}
