// Package config loads the roughmark configuration file (config.yaml).
//
// Top-level types:
//   - Config{Log, Coordinator, Worker}: full config tree parsed from YAML
//   - LogConfig: level (debug|info|warn|error); SlogLevel() maps it to slog
//   - CoordinatorConfig: listen, workers, attach_timeout, input, output,
//     row_width, http_port, progress_interval, metrics_path
//   - WorkerConfig: coordinator_endpoint, dial_timeout, row_width
//
// Load(path) applies defaults (listen :50061, 6 marks per row, 30s attach and
// dial timeouts, status surface disabled), parses the YAML on top, then
// validates. Default() returns the defaults alone for runs without a file.
package config
