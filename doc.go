// Package tcarchive provides an embeddable store-and-dispatch service for
// time-tagged telecommands.
//
// Records reach the service through a spool directory, are appended to a
// flat, frame-delimited archive and are handed to an [Executor] once their
// timestamp has passed. An executed record is removed by compacting the
// archive.
//
// # Basic Usage
//
//	svc, err := tcarchive.New(tcarchive.Config{DataDir: "/var/lib/tcarchive"},
//	    tcarchive.WithExecutor(myUplink),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// from any process sharing the spool directory
//	_, _ = svc.Spool().Submit(records)
//
//	if err := svc.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Run blocks until ctx is canceled or [Service.Stop] is called. Set
// Config.Once to process one cycle and return.
//
// # Direct Archive Access
//
// [Service.Archive] exposes the underlying [archive.Archive] for tools that
// inspect or edit it. The archive is single-threaded: do not use it while
// Run is active.
//
// # Events
//
// Implement [StateHandler] and pass it with [WithStateHandler] to be told
// about lifecycle changes. Pass an [Observer] with [WithObserver] to collect
// archive and dispatch measurements.
package tcarchive
