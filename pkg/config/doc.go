// Package config loads, validates, and watches the TraceForge
// configuration document.
//
// Configuration is resolved from three layers, each winning over the
// one before it: built-in defaults (DefaultConfig), an optional YAML
// file, and environment variables. Load runs the whole pipeline and
// returns a validated *Config:
//
//	cfg, err := config.Load("traceforge.yaml")
//
// Validation collects every problem instead of stopping at the first,
// so a broken file is fixed in one round trip:
//
//	invalid configuration (2 errors):
//	  - proxy_port: must be between 1 and 65535
//	  - vcr.mode: must be one of: off, record, replay, auto, strict
//
// Watcher reloads the file when it changes on disk, debouncing editor
// write bursts and discarding reloads that fail validation. The server
// uses it to swap provider routing, VCR mode, and redaction fields
// without a restart.
package config
