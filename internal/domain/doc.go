// Package domain contains the core entities of the tcarchive dispatcher.
//
// It has no dependencies on infrastructure concerns (file system, logging,
// metrics) and holds only plain data and the errors shared across layers.
//
// # Entities
//
//   - [Status]: dispatcher progress persisted between runs
package domain
