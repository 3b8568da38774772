// Package daemon coordinates the long-running Reelcast process.
//
// Wire assembles configuration, the record store, provider clients, the
// workflow engine, the dispatcher, the failsafe reconciler and feed health
// into one Components value; the CLI reuses it for one-shot commands with
// inline effects. Daemon adds the lifecycle on top: a flock-based lock in the
// data directory prevents multiple instances, Start launches the dispatcher,
// the reconcile loop and the gin HTTP surface, and Stop drains them in
// reverse order.
//
// Keep orchestration here: transition rules live in workflow, provider
// protocols in services, and the daemon only decides who talks to whom.
package daemon
