package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Record is what the ledger remembers about one applied resource.
type Record struct {
	Kind        Kind   `json:"kind"`
	Fingerprint string `json:"fingerprint"`
}

// State is the local record of applied resources and issued delegations.
type State struct {
	Resources   map[string]Record `json:"resources"`
	Delegations map[string]string `json:"delegations"`
}

func NewState() *State {
	return &State{
		Resources:   map[string]Record{},
		Delegations: map[string]string{},
	}
}

// LoadState reads a state file. A missing file yields an empty state.
func LoadState(path string) (*State, error) {
	//nolint:gosec // Path is operator supplied.
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("graph: read state: %w", err)
	}

	st := NewState()
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("graph: decode state %s: %w", path, err)
	}
	if st.Resources == nil {
		st.Resources = map[string]Record{}
	}
	if st.Delegations == nil {
		st.Delegations = map[string]string{}
	}
	return st, nil
}

// Save writes the state atomically, creating parent directories as needed.
func (s *State) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("graph: save state: %w", err)
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("graph: encode state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("graph: save state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("graph: save state: %w", err)
	}
	return nil
}

func (s *State) clone() *State {
	out := NewState()
	if s == nil {
		return out
	}
	for k, v := range s.Resources {
		out.Resources[k] = v
	}
	for k, v := range s.Delegations {
		out.Delegations[k] = v
	}
	return out
}

func (s *State) sortedIDs() []string {
	ids := make([]string, 0, len(s.Resources))
	for id := range s.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
