// Package distribution talks to the social distribution provider that
// publishes a finished video to one or more platforms, optionally scheduled.
package distribution
