// Command reelcast runs the video pipeline daemon and offers one-shot
// operator commands against the same store.
package main
