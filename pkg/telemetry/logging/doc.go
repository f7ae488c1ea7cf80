// Package logging configures the process-wide slog logger.
//
// Setup installs a JSON or text handler at the configured level as
// slog.Default(), which every component logger derives from. Unless
// disabled, a redacting handler wraps the output so sensitive attribute
// keys are masked and secret-shaped substrings never reach the log sink.
// Context helpers carry request-scoped fields (request id, session id,
// trace id, provider, model) through the proxy call chain.
package logging
