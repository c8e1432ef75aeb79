// Package config provides configuration loading and validation for the
// recorder. Configuration comes from built-in defaults, an optional YAML file,
// an optional .env file and RTAK_* environment variables, in that order of
// precedence from lowest to highest.
package config
