// Package sqlite persists localization runs to SQLite.
//
// A run is one replay or simulation. Each processed cycle appends the
// published pose (plus the ground-truth pose when known) and a snapshot of
// every live hypothesis. The schema is owned by the embedded migrations and
// applied with golang-migrate when the store is opened.
package sqlite
