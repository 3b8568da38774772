// Package mediarelay copies provider-hosted videos into a bucket the system
// controls. Provider download links expire; the relayed object gets a stable
// public URL that later stages and distribution platforms can fetch.
package mediarelay
