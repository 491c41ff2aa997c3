// Package config handles configuration loading, parsing, and validation
// from environment variables and an optional YAML file. Every setting has a
// default, so the server starts with an in-memory store and a local artifact
// directory when nothing is configured.
package config
