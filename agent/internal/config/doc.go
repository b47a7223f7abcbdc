// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent}: full config tree parsed from YAML
//   - AgentConfig: endpoint, secret_env, flush_interval, max_batch,
//     request_timeout, stop_timeout, max_accuracy_meters, compression,
//     backoff, tls, device, fix_source, control, log_level
//   - FixSourceConfig: type (serial|file|simulated), device, baud, path,
//     interval, uere_meters
//   - DeviceConfig: id, id_file, battery_path
//
// Load(path) reads the YAML file, applies defaults (5s flush, 300 per batch,
// 50 m accuracy, simulated fixes, control on 127.0.0.1:8787), then validates
// required fields and enums. The bearer secret is never stored in the file;
// Secret() resolves it from the variable named by secret_env.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It watches the parent directory so
// atomic-save editors (write temp file, rename over) keep being seen. Only
// log_level and device.id are applied live by the agent.
package config
