// Package redact scrubs sensitive material from trace payloads before they
// reach disk or logs.
//
// A Redactor applies two independent passes over a JSON document:
//
//  1. Field scrubbing: any object key whose lowercase form contains one of
//     the configured sensitive substrings has its entire value replaced by
//     the placeholder. The redactor does not descend into replaced values.
//  2. Pattern scanning: every remaining string value is scanned for known
//     secret shapes (API keys, bearer tokens, JWTs, emails, SSNs, credit
//     cards, phone numbers) and each match is substituted.
//
// The transform is pure: inputs are never mutated, output depends only on
// input, and applying it twice yields the same bytes as applying it once.
package redact
