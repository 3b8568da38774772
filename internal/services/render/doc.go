// Package render talks to the synthetic-presenter video rendering provider.
//
// Submit posts a script with presenter and dimension parameters and returns
// the provider's video id (the render correlation id). PollStatus is used by
// the failsafe reconciler when no completion webhook has arrived.
package render
