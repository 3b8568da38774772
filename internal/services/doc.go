// Package services defines shared utilities consumed by the provider clients
// and the workflow engine.
//
// Key responsibilities:
//   - Context helpers that stamp workflow ids, kinds, stages, and request ids
//     for logging.
//   - The provider error taxonomy: ProviderError plus the ErrTransient and
//     ErrPermanent markers. HTTP 4xx (except 408 and 429) is permanent;
//     network errors, timeouts, and 5xx are transient.
//   - HTTPClient, a JSON client built on failsafe-go that retries idempotent
//     polls with backoff and guards every provider with a circuit breaker.
//
// The render, caption, and distribution clients live in subpackages.
package services
