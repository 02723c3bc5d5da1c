// Package storage persists what the command-line client needs across runs:
// named wallets and chain RPC endpoints. It uses SQLite by default and
// Postgres when given a postgres:// URL.
package storage
