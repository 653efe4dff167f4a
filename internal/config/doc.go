// Package config loads the devhost daemon configuration.
//
// Values are resolved in three layers: built-in defaults, then the YAML
// file, then DEVHOST_* environment variables. Command-line flags in
// cmd/devhost override the result.
package config
