// Package sqlite provides a persistent cache.Storage backed by SQLite.
//
// Stores survive process restarts, so a proxy restarted with the same version
// identifier keeps serving what it cached before. Store handles are bound by
// name: a handle opened before its store was deleted writes nothing until the
// store is opened again.
package sqlite
