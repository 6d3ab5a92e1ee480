// Package history persists run outcomes and node status transitions to a
// SQLite database. A *Store is an engine.Observer; attach it through
// engine.Options.Observers.
package history
