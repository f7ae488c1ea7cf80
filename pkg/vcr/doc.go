// Package vcr implements record and replay of upstream provider
// interactions, in the style of test cassettes.
//
// A cassette is one recorded interaction, stored as pretty-printed JSON at
// <root>/<provider>/<fingerprint>.json and addressed by a SHA-256
// fingerprint of the request. Fingerprinting is fuzzy by default, ignoring
// sampling parameters such as temperature so that cosmetic changes still
// replay; exact mode commits to them as well.
//
// The engine runs in one of five modes:
//
//	off     record/replay disabled
//	record  forward upstream and record every response
//	replay  serve from cassettes only; a miss is an error
//	auto    replay when a cassette exists, record otherwise
//	strict  replay only, recording forbidden; pins CI to checked-in cassettes
//
// Cassettes are optionally signed with HMAC-SHA-256 under a deployment
// secret. On load a present signature must verify; a mismatch is reported
// as tampering, never as a miss. Cassettes without a signature are
// accepted so unsigned fixtures remain usable.
package vcr
