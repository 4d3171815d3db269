// Package database opens the SQLite file shared by the job store and the
// project library, bootstraps its schema, and provides the SQLITE_BUSY retry
// helpers every write goes through.
//
// Connections are opened in WAL mode with foreign keys enforced and a busy
// timeout applied to every pooled connection. Transactions start IMMEDIATE so
// read-modify-write sequences never deadlock on lock upgrades.
package database
