// Package output encodes configuration documents as YAML, JSON or TOML
// and writes them to stdout or a file.
package output
