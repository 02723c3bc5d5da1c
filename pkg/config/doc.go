// Package config loads the client configuration. Scalar settings come from
// CLEARCLIENT_* environment variables, optionally seeded from a .env file;
// the deposit networks come from networks.yaml in the same directory.
package config
