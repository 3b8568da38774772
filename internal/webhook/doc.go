// Package webhook normalizes provider callback bodies into typed events.
//
// Providers name the same fields differently (projectId or id, downloadUrl or
// media_url or video_url) and sometimes nest them under "data". Each
// provider has an explicit alias table; a body with no recognizable
// correlation id is rejected with ErrUnparseablePayload.
package webhook
