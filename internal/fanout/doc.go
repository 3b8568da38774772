// Package fanout publishes one finished video to every platform in a plan.
//
// The orchestrator asks the schedule package for per-platform timestamps,
// expands each platform into its provider calls (Instagram and Facebook post
// a reel and a story), and submits them one at a time with a fixed pause
// between calls. Post ids and errors from every call are collected. The
// overall result succeeds when at least one call succeeded.
package fanout
