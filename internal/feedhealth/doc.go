// Package feedhealth checks that the configured content sources are reachable
// and still serve an RSS or Atom document.
//
// Results are cached in the store for the configured TTL (one hour by
// default) so the API health endpoint and the CLI share one probe. A source
// that is down does not block anything on its own; only a check where every
// source fails raises an alert and an operator notification.
package feedhealth
