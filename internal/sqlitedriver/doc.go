// Package sqlitedriver registers the SQLite database/sql driver used by every
// crucible store under the name "sqlite3". CGO builds link go-sqlcipher so that
// runner and session databases can be encrypted with a key; pure-Go builds use
// modernc.org/sqlite, which reads and writes the same unencrypted files.
//
// Import this package for its side effects only:
//
//	import _ "github.com/teradata-labs/crucible/internal/sqlitedriver"
package sqlitedriver
