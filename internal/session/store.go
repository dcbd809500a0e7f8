package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// ErrCorruptState reports a snapshot file that exists but cannot be
// parsed. Raised only at startup; the operator decides whether to
// delete the file or abort.
var ErrCorruptState = errors.New("corrupt state file")

// Store persists the per-machine State map as a single JSON file so the
// tracker survives restarts without re-emitting stale events.
//
// Save is called once per poll cycle after the tracker produces the
// next states; Load only at startup. The two are never concurrent.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot file location.
func (s *Store) Path() string { return s.path }

// Load reads the persisted map. A missing file means "no prior state"
// and returns an empty map; an unparsable file returns ErrCorruptState.
func (s *Store) Load() (map[int]*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[int]*State{}, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	// Keys are stringified machine IDs for a stable on-disk format.
	var raw map[string]*State
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, s.path, err)
	}

	states := make(map[int]*State, len(raw))
	for key, st := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: bad machine key %q", ErrCorruptState, s.path, key)
		}
		if st.MachineID == 0 {
			st.MachineID = id
		}
		states[id] = st
	}
	return states, nil
}

// Save atomically replaces the snapshot file: write to a temp file in
// the same directory, fsync, then rename. A crash mid-write never
// leaves a truncated file behind.
func (s *Store) Save(states map[int]*State) error {
	ids := make([]int, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	raw := make(map[string]*State, len(states))
	for _, id := range ids {
		raw[strconv.Itoa(id)] = states[id]
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".rental_snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
