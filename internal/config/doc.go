// Package config loads, validates, and normalizes the TOML configuration for
// the reelpipe daemon and CLI. Defaults live in defaults.go; validation rules
// in validate.go. Paths are tilde-expanded and made absolute during load.
package config
