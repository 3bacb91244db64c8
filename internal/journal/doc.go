// Package journal persists the history of worker calls and supervisor
// lifecycle transitions.
//
// SQLiteStore keeps the history in a SQLite database through the pure Go
// modernc.org/sqlite driver. The schema is created when the store is
// opened. Every record carries the session id of the application run that
// wrote it.
package journal
