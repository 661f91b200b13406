// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Zero values are replaced by defaults before validation; see defaults.go.
package config
