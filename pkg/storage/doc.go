// Package storage defines the small named-resource file system the archive
// runs on, and implementations of it.
//
// The interface mirrors what embedded file systems offer: open for reading
// or appending, bytes available, size, sync, close, remove and, where the
// platform supports it, rename. There are no transactions and no
// directories; names are at most [MaxNameLen] characters.
//
// [AferoFS] adapts any github.com/spf13/afero file system, which gives the
// real OS directory in production and an in-memory file system in tests.
// [Faulty] wraps another FileSystem and injects failures on selected
// operations.
package storage
