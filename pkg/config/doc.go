// Package config loads the fabric deployment configuration from YAML, with
// defaults matching the standard local seven-replica setup.
package config
