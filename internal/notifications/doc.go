// Package notifications pushes operator-facing events to ntfy.
//
// The default implementation publishes to the topic URL configured under
// [notifications] and degrades to a no-op when no topic is set. Only events
// that need a human (critical alerts, every feed down) are pushed; routine
// events are accepted and dropped so callers can publish unconditionally.
package notifications
