// Package repositories implements SQLite persistence for spx.
//
// [RecordRepository] stores keyed opaque values (the credential bundle and the cookie snapshot)
// in the records table created by the embedded migrations in the shared package.
// Deletes are hard deletes: logging out must leave nothing behind on the device.
//
// [RecordRepository] also satisfies the tokens package backend contract (Read/Write/Remove),
// so the token store can run on SQLite or on plain files interchangeably.
package repositories
