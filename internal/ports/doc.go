// Package ports defines the interfaces that connect the dispatcher to its
// infrastructure.
//
// # Port Interfaces
//
//   - [Store]: the telecommand archive
//   - [Submissions]: the spool of records waiting to be archived
//   - [Executor]: carries out a due record
//   - [StatusRepository]: persists dispatcher status
//
// The application layer (internal/app) depends only on these interfaces.
// Adapters (internal/adapters and the pkg/ libraries) implement them.
package ports
