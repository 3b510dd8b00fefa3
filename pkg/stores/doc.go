// Package stores provides the persistence layer for the NFV manager.
// It keeps the set of NS records under observation in SQLite, together
// with an append-only audit trail of deploy, refresh and release actions.
// Every operation of SQLiteStore runs inside a single mutual-exclusion
// domain, so the reconciliation loop and foreground requests never
// observe a half-replaced record.
package stores
