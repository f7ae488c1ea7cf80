package vcr

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Mode is the record/replay operating mode.
type Mode string

const (
	// ModeOff disables record/replay entirely.
	ModeOff Mode = "off"

	// ModeRecord forwards every request upstream and records the
	// response as a cassette.
	ModeRecord Mode = "record"

	// ModeReplay serves every request from cassettes. A miss is an
	// error; the upstream is never contacted.
	ModeReplay Mode = "replay"

	// ModeAuto replays when a cassette exists and records otherwise.
	ModeAuto Mode = "auto"

	// ModeStrict replays only. A miss is a hard error and recording is
	// forbidden, which pins CI runs to the checked-in cassettes.
	ModeStrict Mode = "strict"
)

// ParseMode validates a mode string. Empty input selects ModeOff.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return ModeOff, nil
	case ModeOff:
		return ModeOff, nil
	case ModeRecord:
		return ModeRecord, nil
	case ModeReplay:
		return ModeReplay, nil
	case ModeAuto:
		return ModeAuto, nil
	case ModeStrict:
		return ModeStrict, nil
	default:
		return "", fmt.Errorf("unknown VCR mode %q (valid: off, record, replay, auto, strict)", s)
	}
}

// Config configures the VCR engine.
type Config struct {
	// Mode selects the record/replay behavior. Default: ModeOff
	Mode Mode

	// Match selects the fingerprinting policy. Default: MatchFuzzy
	Match MatchMode

	// CassettesDir is the cassette store root. Default: ".cassettes"
	CassettesDir string

	// Secret signs cassettes on record and verifies them on replay.
	// Optional.
	Secret string

	// Logger for engine operations. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Mode:         ModeOff,
		Match:        MatchFuzzy,
		CassettesDir: ".cassettes",
	}
}

// Stats is a snapshot of the engine's counters.
type Stats struct {
	Mode       string `json:"mode"`
	Match      string `json:"match_mode"`
	Replays    int64  `json:"replays_total"`
	Misses     int64  `json:"misses_total"`
	Recordings int64  `json:"recordings_total"`
	Tampered   int64  `json:"tampered_total"`
}

// VCR is the record/replay state machine over the cassette store. It is
// safe for concurrent use, including mode swaps while requests are in
// flight.
type VCR struct {
	pol    atomic.Value // policy
	store  *Store
	logger *slog.Logger

	replays    atomic.Int64
	misses     atomic.Int64
	recordings atomic.Int64
	tampered   atomic.Int64
}

// policy is the atomically-swapped pair of mode and match settings.
type policy struct {
	mode  Mode
	match MatchMode
}

// New creates a VCR engine from config.
func New(config *Config) *VCR {
	if config == nil {
		config = DefaultConfig()
	}
	mode := config.Mode
	if mode == "" {
		mode = ModeOff
	}
	match := config.Match
	if match == "" {
		match = MatchFuzzy
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "vcr")

	v := &VCR{
		store: NewStore(&StoreConfig{
			Root:   config.CassettesDir,
			Secret: config.Secret,
			Logger: logger,
		}),
		logger: logger,
	}
	v.pol.Store(policy{mode: mode, match: match})
	if mode != ModeOff {
		logger.Info("VCR enabled",
			"mode", string(mode),
			"match_mode", string(match),
			"cassettes_dir", v.store.Root(),
			"signed", config.Secret != "")
	}
	return v
}

// policyNow returns the current mode and match pair.
func (v *VCR) policyNow() policy {
	return v.pol.Load().(policy)
}

// Mode returns the engine's operating mode.
func (v *VCR) Mode() Mode {
	return v.policyNow().mode
}

// Enabled reports whether the engine participates in request handling.
func (v *VCR) Enabled() bool {
	return v.policyNow().mode != ModeOff
}

// Reconfigure swaps the operating mode and match policy. Counters and
// the cassette store carry over, so a config reload never loses
// recorded state. Requests in flight finish under the policy they
// started with.
func (v *VCR) Reconfigure(mode Mode, match MatchMode) {
	if mode == "" {
		mode = ModeOff
	}
	if match == "" {
		match = MatchFuzzy
	}

	old := v.policyNow()
	if old.mode == mode && old.match == match {
		return
	}

	v.pol.Store(policy{mode: mode, match: match})
	v.logger.Info("VCR reconfigured",
		"mode", string(mode),
		"match_mode", string(match),
		"previous_mode", string(old.mode))
}

// Fingerprint computes the cassette address for a request body under the
// engine's match mode.
func (v *VCR) Fingerprint(provider string, body []byte) string {
	return Fingerprint(provider, body, v.policyNow().match)
}

// ShouldReplay decides whether the request addressed by (provider,
// fingerprint) is served from a cassette.
//
// Mode off and record never replay. Replay mode returns the cassette or a
// MissError. Auto returns the cassette when one exists and (nil, nil)
// otherwise, letting the caller fall through to a live call. Strict
// returns the cassette or a StrictMissError. In every mode a tampered or
// unparsable cassette propagates as a hard error rather than a miss.
func (v *VCR) ShouldReplay(provider, fingerprint string) (*Cassette, error) {
	mode := v.policyNow().mode
	switch mode {
	case ModeOff, ModeRecord:
		return nil, nil
	}

	c, err := v.store.Find(provider, fingerprint)
	if err != nil {
		if IsTamper(err) {
			v.tampered.Add(1)
		}
		return nil, err
	}
	if c != nil {
		v.replays.Add(1)
		v.logger.Debug("cassette replay",
			"provider", provider,
			"fingerprint", fingerprint,
			"recorded_at", c.RecordedAt)
		return c, nil
	}

	switch mode {
	case ModeReplay:
		v.misses.Add(1)
		return nil, NewMissError(provider, fingerprint)
	case ModeStrict:
		v.misses.Add(1)
		return nil, NewStrictMissError(provider, fingerprint)
	default: // ModeAuto falls through to a live upstream call.
		return nil, nil
	}
}

// Record persists the interaction as a cassette when the mode calls for
// it. Off and replay modes are a no-op, record and auto persist, and
// strict returns a RecordForbiddenError.
func (v *VCR) Record(provider, fingerprint string, request []byte, response *CassetteResponse) error {
	switch v.policyNow().mode {
	case ModeOff, ModeReplay:
		return nil
	case ModeStrict:
		return NewRecordForbiddenError(provider, fingerprint)
	}

	if response == nil {
		return NewInvalidCassetteError(v.store.path(provider, fingerprint), "nil response", nil)
	}

	c := &Cassette{
		CassetteVersion: CassetteVersion,
		Provider:        provider,
		Request:         json.RawMessage(request),
		Response:        *response,
		RecordedAt:      time.Now().UTC(),
	}
	if err := v.store.Save(provider, fingerprint, c); err != nil {
		v.logger.Error("cassette recording failed",
			"provider", provider,
			"fingerprint", fingerprint,
			"error", err)
		return err
	}

	v.recordings.Add(1)
	v.logger.Debug("cassette recorded",
		"provider", provider,
		"fingerprint", fingerprint)
	return nil
}

// Store exposes the underlying cassette store for inspection commands.
func (v *VCR) Store() *Store {
	return v.store
}

// Stats returns a snapshot of the engine's counters.
func (v *VCR) Stats() Stats {
	p := v.policyNow()
	return Stats{
		Mode:       string(p.mode),
		Match:      string(p.match),
		Replays:    v.replays.Load(),
		Misses:     v.misses.Load(),
		Recordings: v.recordings.Load(),
		Tampered:   v.tampered.Load(),
	}
}
