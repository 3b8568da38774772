// Package schedule maps (platform, weekday) to the hour a post should go out
// and builds posting timetables from those hours.
//
// Two lookup tables back every answer. The analytics table holds hours
// measured from past engagement with a per-entry confidence; the heuristic
// table covers every platform and weekday so a lookup never comes back
// empty. Analytics wins when present.
//
// Same-day fan-out places every platform on one calendar date and may return
// hours that have already passed; callers decide whether to post those
// immediately. Weekly fan-out always resolves to the next slot strictly after
// the supplied time, rolling into the following week when needed.
//
// Everything here is pure: no clock reads and no shared mutable state.
package schedule
