// Package config loads the collector configuration from the `collector:`
// section of a YAML file. Other top-level keys (such as `agent:`) are
// ignored, so one file can configure both binaries in development.
//
// Fields:
//   - http_port             listen port for /locations and /api/v1 (default 8080)
//   - secret_env            environment variable holding the bearer secret;
//     empty disables authentication
//   - retention             devices silent for longer are evicted (default 24h)
//   - max_points_per_device newest points kept per device (default 10000)
//   - max_body_bytes        request body limit after decompression (default 4 MiB)
//   - log_level             debug | info | warn | error
package config
