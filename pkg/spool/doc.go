// Package spool is a directory of pending telecommand submissions waiting
// to be appended to the archive.
//
// Producers call [Spool.Submit] from any process; each submission is one
// CBOR file named by a ULID, written to a temporary name and renamed into
// place so a reader never sees a partial file. The process that owns the
// archive calls [Spool.Drain] to consume submissions oldest first.
package spool
