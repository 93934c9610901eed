// Package config loads and validates the streaming client configuration
// from YAML, with environment variable expansion and layered defaults.
package config
