package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"traceforge-hq/traceforge/pkg/trace"
)

// traceFileTimeLayout is the filename timestamp format. Colons are not
// portable in filenames, so the time-of-day portion uses dashes.
const traceFileTimeLayout = "2006-01-02T15-04-05.000Z"

// FileConfig contains configuration for the flat-file storage backend.
type FileConfig struct {
	// Root is the directory holding one JSON file per trace.
	// Default: ".traces"
	Root string

	// TestsDir is the directory holding one JSON file per test case.
	// Default: "<Root>/tests"
	TestsDir string
}

// DefaultFileConfig returns the default file backend configuration.
func DefaultFileConfig() *FileConfig {
	return &FileConfig{Root: ".traces"}
}

// FileStore implements trace.Store with one JSON file per record at
// <root>/<timestamp>_<id>.json. Writes go through a temp file in the
// same directory followed by an atomic rename, so a reader never
// observes a partial record.
type FileStore struct {
	root     string
	testsDir string
	logger   *slog.Logger
}

// NewFileStore creates a file-backed store, creating the directories
// if needed.
func NewFileStore(config *FileConfig) (*FileStore, error) {
	if config == nil {
		config = DefaultFileConfig()
	}
	root := config.Root
	if root == "" {
		root = ".traces"
	}
	testsDir := config.TestsDir
	if testsDir == "" {
		testsDir = filepath.Join(root, "tests")
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, trace.NewStorageError("file", "mkdir", err)
	}
	if err := os.MkdirAll(testsDir, 0755); err != nil {
		return nil, trace.NewStorageError("file", "mkdir", err)
	}

	s := &FileStore{
		root:     root,
		testsDir: testsDir,
		logger:   slog.Default().With("component", "trace.storage.file"),
	}
	s.logger.Info("file store initialized", "root", root)
	return s, nil
}

// Root returns the trace directory.
func (s *FileStore) Root() string { return s.root }

// SaveTrace writes the trace to <root>/<timestamp>_<id>.json. An
// existing record with the same id is replaced.
func (s *FileStore) SaveTrace(ctx context.Context, t *trace.Trace) error {
	if t == nil || t.ID == "" {
		return trace.NewStorageError("file", "save_trace", errors.New("trace id is empty"))
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return trace.NewStorageError("file", "save_trace", err)
	}

	name := t.Timestamp.UTC().Format(traceFileTimeLayout) + "_" + t.ID + ".json"
	path := filepath.Join(s.root, name)

	// A re-save with a changed timestamp lands on a new name; the old
	// file goes away after the new record is durably in place so an id
	// never resolves to two records.
	old, findErr := s.findTraceFile(t.ID)

	if err := writeFileAtomic(path, data); err != nil {
		return trace.NewStorageError("file", "save_trace", err)
	}
	if findErr == nil && old != path {
		os.Remove(old)
	}
	return nil
}

// GetTrace reads a trace by id, upgrading older record shapes.
func (s *FileStore) GetTrace(ctx context.Context, id string) (*trace.Trace, error) {
	path, err := s.findTraceFile(id)
	if err != nil {
		return nil, err
	}
	return s.readTrace(path)
}

// ListTraces scans the directory, filters, sorts, and paginates.
// Timestamp ordering follows file modification time.
func (s *FileStore) ListTraces(ctx context.Context, opts *trace.ListOptions) ([]*trace.Trace, error) {
	opts = opts.WithDefaults()

	loaded, err := s.loadAll(&opts.Filter)
	if err != nil {
		return nil, err
	}

	sortLoaded(loaded, opts.SortBy, opts.SortOrder)

	start := opts.Offset
	if start > len(loaded) {
		return []*trace.Trace{}, nil
	}
	end := start + opts.Limit
	if end > len(loaded) {
		end = len(loaded)
	}

	out := make([]*trace.Trace, 0, end-start)
	for _, l := range loaded[start:end] {
		out = append(out, l.t)
	}
	return out, nil
}

// DeleteTrace removes the trace file for id.
func (s *FileStore) DeleteTrace(ctx context.Context, id string) error {
	path, err := s.findTraceFile(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return trace.NewStorageError("file", "delete_trace", err)
	}
	return nil
}

// CountTraces returns the number of trace files.
func (s *FileStore) CountTraces(ctx context.Context) (int64, error) {
	entries, err := s.scanTraceFiles()
	if err != nil {
		return 0, err
	}
	return int64(len(entries)), nil
}

// ListSessionTraces returns the traces of one session ordered by step
// index, ties broken by timestamp.
func (s *FileStore) ListSessionTraces(ctx context.Context, sessionID string) ([]*trace.Trace, error) {
	loaded, err := s.loadAll(nil)
	if err != nil {
		return nil, err
	}

	var members []*trace.Trace
	for _, l := range loaded {
		if l.t.SessionID == sessionID {
			members = append(members, l.t)
		}
	}

	sort.SliceStable(members, func(i, j int) bool {
		si, sj := stepOf(members[i]), stepOf(members[j])
		if si != sj {
			return si < sj
		}
		return members[i].Timestamp.Before(members[j].Timestamp)
	})

	if members == nil {
		members = []*trace.Trace{}
	}
	return members, nil
}

// GetSessionMetadata summarizes the traces sharing a session id.
func (s *FileStore) GetSessionMetadata(ctx context.Context, sessionID string) (*trace.SessionMetadata, error) {
	members, err := s.ListSessionTraces(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, trace.NewNotFoundError("session", sessionID)
	}
	return summarizeSession(sessionID, members), nil
}

// SaveTest writes a test case to <testsDir>/<id>.json.
func (s *FileStore) SaveTest(ctx context.Context, tc *trace.TestCase) error {
	if tc == nil || tc.ID == "" {
		return trace.NewStorageError("file", "save_test", errors.New("test id is empty"))
	}

	now := time.Now().UTC()
	rec := *tc
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	data, err := json.MarshalIndent(&rec, "", "  ")
	if err != nil {
		return trace.NewStorageError("file", "save_test", err)
	}
	if err := writeFileAtomic(filepath.Join(s.testsDir, rec.ID+".json"), data); err != nil {
		return trace.NewStorageError("file", "save_test", err)
	}
	return nil
}

// GetTest reads a test case by id.
func (s *FileStore) GetTest(ctx context.Context, id string) (*trace.TestCase, error) {
	data, err := os.ReadFile(filepath.Join(s.testsDir, id+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, trace.NewNotFoundError("test", id)
	}
	if err != nil {
		return nil, trace.NewStorageError("file", "get_test", err)
	}

	var tc trace.TestCase
	if err := json.Unmarshal(data, &tc); err != nil {
		return nil, trace.NewStorageError("file", "get_test", err)
	}
	return &tc, nil
}

// ListTests reads every test case, newest first.
func (s *FileStore) ListTests(ctx context.Context) ([]*trace.TestCase, error) {
	entries, err := os.ReadDir(s.testsDir)
	if err != nil {
		return nil, trace.NewStorageError("file", "list_tests", err)
	}

	tests := []*trace.TestCase{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || strings.Contains(e.Name(), ".tmp.") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.testsDir, e.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable test file", "file", e.Name(), "error", err)
			continue
		}
		var tc trace.TestCase
		if err := json.Unmarshal(data, &tc); err != nil {
			s.logger.Warn("skipping malformed test file", "file", e.Name(), "error", err)
			continue
		}
		tests = append(tests, &tc)
	}

	sort.Slice(tests, func(i, j int) bool {
		return tests[i].CreatedAt.After(tests[j].CreatedAt)
	})
	return tests, nil
}

// DeleteTest removes a test case by id.
func (s *FileStore) DeleteTest(ctx context.Context, id string) error {
	err := os.Remove(filepath.Join(s.testsDir, id+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return trace.NewNotFoundError("test", id)
	}
	if err != nil {
		return trace.NewStorageError("file", "delete_test", err)
	}
	return nil
}

// Cleanup removes trace files older than maxAge, then trims to the
// newest maxCount files. Either limit may be zero to skip it.
func (s *FileStore) Cleanup(ctx context.Context, maxAge time.Duration, maxCount int) (int64, error) {
	entries, err := s.scanTraceFiles()
	if err != nil {
		return 0, err
	}

	var deleted int64

	if maxAge > 0 {
		cutoff := time.Now().Add(-maxAge)
		kept := entries[:0]
		for _, e := range entries {
			if e.ts.Before(cutoff) {
				if err := os.Remove(e.path); err != nil {
					s.logger.Warn("cleanup failed to remove trace file", "file", e.path, "error", err)
					kept = append(kept, e)
					continue
				}
				deleted++
			} else {
				kept = append(kept, e)
			}
		}
		entries = kept
	}

	if maxCount > 0 && len(entries) > maxCount {
		sort.Slice(entries, func(i, j int) bool { return entries[i].ts.After(entries[j].ts) })
		for _, e := range entries[maxCount:] {
			if err := os.Remove(e.path); err != nil {
				s.logger.Warn("cleanup failed to remove trace file", "file", e.path, "error", err)
				continue
			}
			deleted++
		}
	}

	return deleted, nil
}

// Close is a no-op; the store holds no long-lived resources.
func (s *FileStore) Close() error { return nil }

type traceFileEntry struct {
	path string
	id   string
	ts   time.Time // from the filename, or mod time when unparsable
	mod  time.Time
}

type loadedTrace struct {
	t   *trace.Trace
	mod time.Time
}

// scanTraceFiles lists the trace files under root, skipping temp files
// and anything that is not a trace record.
func (s *FileStore) scanTraceFiles() ([]traceFileEntry, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, trace.NewStorageError("file", "scan", err)
	}

	entries := make([]traceFileEntry, 0, len(dirEntries))
	for _, e := range dirEntries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.Contains(name, ".tmp.") {
			continue
		}
		base := strings.TrimSuffix(name, ".json")
		parts := strings.SplitN(base, "_", 2)
		if len(parts) != 2 {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		ts, perr := time.Parse(traceFileTimeLayout, parts[0])
		if perr != nil {
			ts = info.ModTime()
		}

		entries = append(entries, traceFileEntry{
			path: filepath.Join(s.root, name),
			id:   parts[1],
			ts:   ts,
			mod:  info.ModTime(),
		})
	}
	return entries, nil
}

func (s *FileStore) findTraceFile(id string) (string, error) {
	entries, err := s.scanTraceFiles()
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.id == id {
			return e.path, nil
		}
	}
	return "", trace.NewNotFoundError("trace", id)
}

func (s *FileStore) readTrace(path string) (*trace.Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, trace.NewStorageError("file", "read", err)
	}
	t, warnings, err := trace.Upgrade(data)
	if err != nil {
		return nil, trace.NewStorageError("file", "decode", err)
	}
	for _, w := range warnings {
		s.logger.Warn("trace upgraded on load", "file", filepath.Base(path), "warning", w)
	}
	return t, nil
}

// loadAll reads every trace file, skipping unreadable ones with a
// warning. A non-nil filter is applied during the scan.
func (s *FileStore) loadAll(filter *trace.ListFilter) ([]loadedTrace, error) {
	entries, err := s.scanTraceFiles()
	if err != nil {
		return nil, err
	}

	loaded := make([]loadedTrace, 0, len(entries))
	for _, e := range entries {
		t, err := s.readTrace(e.path)
		if err != nil {
			s.logger.Warn("skipping unreadable trace file", "file", e.path, "error", err)
			continue
		}
		if !filter.Matches(t) {
			continue
		}
		loaded = append(loaded, loadedTrace{t: t, mod: e.mod})
	}
	return loaded, nil
}

func sortLoaded(loaded []loadedTrace, sortBy, sortOrder string) {
	asc := sortOrder == trace.SortAsc
	sort.SliceStable(loaded, func(i, j int) bool {
		var less bool
		switch sortBy {
		case trace.SortByDuration:
			less = loaded[i].t.Metadata.DurationMS < loaded[j].t.Metadata.DurationMS
		case trace.SortByModel:
			less = loaded[i].t.Metadata.Model < loaded[j].t.Metadata.Model
		default:
			less = loaded[i].mod.Before(loaded[j].mod)
		}
		if asc {
			return less
		}
		return !less
	})
}

func stepOf(t *trace.Trace) int {
	if t.StepIndex == nil {
		return 0
	}
	return *t.StepIndex
}

func summarizeSession(sessionID string, members []*trace.Trace) *trace.SessionMetadata {
	meta := &trace.SessionMetadata{
		SessionID:  sessionID,
		TraceCount: len(members),
		FirstSeen:  members[0].Timestamp,
		LastSeen:   members[0].Timestamp,
	}
	modelSet := map[string]bool{}
	for _, t := range members {
		if t.Timestamp.Before(meta.FirstSeen) {
			meta.FirstSeen = t.Timestamp
		}
		if t.Timestamp.After(meta.LastSeen) {
			meta.LastSeen = t.Timestamp
		}
		meta.TotalDurationMS += t.Metadata.DurationMS
		if m := t.Metadata.Model; m != "" {
			modelSet[m] = true
		}
	}
	for m := range modelSet {
		meta.Models = append(meta.Models, m)
	}
	sort.Strings(meta.Models)
	return meta
}

// writeFileAtomic writes data to a temp file next to path and renames
// it into place. Rename within one directory is atomic on POSIX
// filesystems.
func writeFileAtomic(path string, data []byte) error {
	tmp := fmt.Sprintf("%s.tmp.%s", path, randomNonce())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func randomNonce() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
