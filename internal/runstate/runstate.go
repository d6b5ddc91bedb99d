// Package runstate persists the only cross-run shared state: per-source
// offset, empty-round counter, and the id:hash map. All three are plain
// text, human-diffable, and safe to hand-edit for operational recovery,
// which rules out any embedded database here.
package runstate

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"jurisync/internal/domain"
)

// State is one source's cross-run bookkeeping, loaded at batch start and
// stored only after the batch fully completes (at-least-once semantics on
// crash).
type State struct {
	Offset      int64
	EmptyRounds int
	// Hashes maps "source:id" keys to the content hash last mirrored.
	Hashes map[string]string
}

// Store reads and writes per-source state files under one directory:
// <dir>/<source>.offset, <dir>/<source>.emptyrounds, <dir>/<source>.hashes.
type Store struct {
	dir string
}

// NewStore creates the state directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(source domain.Source, suffix string) string {
	return filepath.Join(s.dir, string(source)+"."+suffix)
}

// Load reads the state for one source. Missing files yield zero values so a
// first run needs no provisioning.
func (s *Store) Load(source domain.Source) (State, error) {
	state := State{Hashes: make(map[string]string)}

	offset, err := readInt(s.path(source, "offset"))
	if err != nil {
		return state, fmt.Errorf("load offset: %w", err)
	}
	state.Offset = offset

	empty, err := readInt(s.path(source, "emptyrounds"))
	if err != nil {
		return state, fmt.Errorf("load empty rounds: %w", err)
	}
	state.EmptyRounds = int(empty)

	if err := readHashes(s.path(source, "hashes"), state.Hashes); err != nil {
		return state, fmt.Errorf("load hashes: %w", err)
	}
	return state, nil
}

// Store writes the state for one source. Each file is written to a temp
// sibling and renamed so a crash never leaves a torn file.
func (s *Store) Store(source domain.Source, state State) error {
	if err := writeAtomic(s.path(source, "offset"), strconv.FormatInt(state.Offset, 10)+"\n"); err != nil {
		return fmt.Errorf("store offset: %w", err)
	}
	if err := writeAtomic(s.path(source, "emptyrounds"), strconv.Itoa(state.EmptyRounds)+"\n"); err != nil {
		return fmt.Errorf("store empty rounds: %w", err)
	}

	keys := make([]string, 0, len(state.Hashes))
	for k := range state.Hashes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(state.Hashes[k])
		b.WriteByte('\n')
	}
	if err := writeAtomic(s.path(source, "hashes"), b.String()); err != nil {
		return fmt.Errorf("store hashes: %w", err)
	}
	return nil
}

func readInt(path string) (int64, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return 0, nil
	}
	return strconv.ParseInt(trimmed, 10, 64)
}

func readHashes(path string, into map[string]string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// Keys themselves contain a colon ("source:id"), so split on the
		// last one.
		idx := strings.LastIndex(line, ":")
		if idx <= 0 || idx == len(line)-1 {
			continue
		}
		into[line[:idx]] = line[idx+1:]
	}
	return scanner.Err()
}

func writeAtomic(path, content string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
