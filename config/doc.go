// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the application configuration structure
// including server settings, logging, circuit breaker defaults, and the list
// of guarded upstream services with their per-upstream overrides.
package config
