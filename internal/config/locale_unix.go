//go:build !windows && !darwin

package config

// Plain Unix keeps its locale in the environment, which systemLocale
// already consults; there is no further store to ask.
func platformLocale() string { return "" }
