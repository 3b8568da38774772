// Package config loads, normalizes, and validates reelcast configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// RENDER_API_KEY and CRON_SECRET (a .env file in the working directory is
// loaded first). The Config type centralizes every knob the daemon and CLI
// need: provider endpoints, storage credentials, reconcile thresholds, and the
// posting timezone.
//
// Always obtain settings through this package so downstream code receives
// sanitized URLs, expanded paths, and clear validation errors.
package config
