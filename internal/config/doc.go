// Package config loads, normalizes, and validates nxinfo configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// NXINFO_KEYS_DIR. The Config type centralizes the key file locations, the
// version list source, the hactool binary and the history store so the CLI
// discovers everything in one pass.
package config
