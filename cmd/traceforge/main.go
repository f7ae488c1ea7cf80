// TraceForge is a programmable reverse proxy between application code
// and LLM providers.
//
// It terminates OpenAI-dialect API requests and provides:
//   - Multi-provider routing (OpenAI, Anthropic, Gemini, Ollama)
//   - VCR-style record and replay with tamper-evident cassettes
//   - Trace capture with redaction, retention, and full-text search
//   - Per-client rate limiting and circuit-broken persistence
//   - JSON and Prometheus metrics plus OpenTelemetry spans
//
// Usage:
//
//	# Start the proxy with default configuration
//	traceforge run
//
//	# Start with a custom configuration file
//	traceforge run --config /path/to/traceforge.yaml
//
//	# Check a configuration file without starting
//	traceforge validate
//
//	# Inspect captured traces
//	traceforge traces list
//	traceforge traces search "timeout"
//	traceforge traces export --format csv --output traces.csv
//
//	# Inspect recorded cassettes
//	traceforge cassettes list
//	traceforge cassettes verify
//
//	# Generate a cassette signing secret
//	traceforge secret generate
package main

func main() {
	Execute()
}
