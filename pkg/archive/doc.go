// Package archive stores telecommand records in an append-only file and
// finds the scheduled ones that have come due.
//
// Records are appended one frame at a time and never modified in place.
// Removing records means rewriting the archive without them through a
// staging resource (see [Archive.Compact]). A reading session, opened with
// [Archive.BeginReading] and closed with [Archive.EndReading], scans the
// archive in append order; writes are refused while it is open.
//
// # Usage
//
//	fsys, err := storage.NewOS(dataDir)
//	if err != nil {
//	    return err
//	}
//	a, err := archive.New(fsys, archive.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if _, err := a.Recover(); err != nil {
//	    return err
//	}
//
//	if err := a.Write(rec); err != nil {
//	    return err
//	}
//
//	rec, ok, err := a.PopDue()
//
// # Faults
//
// Failed storage operations and undecodable frames are returned as errors
// and also counted; [Archive.Faults] and [Archive.LastFault] expose the
// count and the latest one. Refused calls ([ErrReadingInProgress],
// [ErrHandleOpen]) are not faults.
//
// An Archive is owned by a single goroutine.
package archive
