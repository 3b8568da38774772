// Package caption talks to the captioning/effects provider that turns a
// rendered video into the final captioned cut.
package caption
