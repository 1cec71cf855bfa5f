// Package output renders extraction results as TOML, JSON or YAML and
// writes them to date-organized files.
package output
