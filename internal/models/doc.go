// Package models defines persisted entities and the generic persistence interfaces for spx.
//
// spx persists very little: the credential bundle and a best-effort cookie snapshot.
// Both are stored as a [Record], an opaque value addressed by a fixed key.
//
// All persistent entities implement the [Model] interface providing ID, timestamps and validation.
// The [Repository] interface defines standard CRUD operations for database access.
package models
