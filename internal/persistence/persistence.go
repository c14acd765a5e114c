// Package persistence implements the engine's on-disk state: the
// session-level xtalopt.state file and each candidate's structure.state
// file, written atomically so a crash mid-write never corrupts the
// session.
package persistence

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/xtalopt/engine/internal/candidate"
	"github.com/xtalopt/engine/internal/enginerr"
	"github.com/xtalopt/engine/internal/lattice"
)

const (
	sessionStateName    = "xtalopt.state"
	candidateStateName  = "structure.state"
	legacyCandidateName = "xtal.state" // older sessions wrote this name.
)

// SessionState is the top-level record written to xtalopt.state: enough to
// rebuild the engine's in-memory state on resume without re-deriving
// anything from the candidate directories.
type SessionState struct {
	Version        int    `yaml:"version"`
	SaveSuccessful bool   `yaml:"save_successful"`
	SessionRoot    string `yaml:"session_root"`
	NextGeneration int    `yaml:"next_generation"`
	CandidateCount int    `yaml:"candidate_count"`
}

// CandidateState is the per-candidate record written to structure.state.
type CandidateState struct {
	IDNumber    int              `yaml:"id_number"`
	Generation  int              `yaml:"generation"`
	Index       int              `yaml:"index"`
	Parents     string           `yaml:"parents"`
	Cell        lattice.Cell     `yaml:"cell"`
	Atoms       []lattice.Atom   `yaml:"atoms"`
	Energy      float64          `yaml:"energy"`
	Enthalpy    float64          `yaml:"enthalpy"`
	PV          float64          `yaml:"pv"`
	Status      candidate.Status `yaml:"status"`
	CurrentStep int              `yaml:"current_step"`
	FailCount   int              `yaml:"fail_count"`
	Spacegroup  uint             `yaml:"spacegroup"`
	DuplicateOf string           `yaml:"duplicate_of,omitempty"`
	LocalPath   string           `yaml:"local_path"`
	RemotePath  string           `yaml:"remote_path,omitempty"`
}

// SaveSession atomically writes the session state file: marshal to
// <root>/xtalopt.state.tmp, rotate the existing file to .old, then rename
// the tmp file into place. A reader that finds save_successful=false on
// load knows the prior write was interrupted and falls back to the .old
// copy.
func SaveSession(root string, s SessionState) error {
	s.SaveSuccessful = true
	data, err := yaml.Marshal(s)
	if err != nil {
		return enginerr.Wrap(enginerr.CorruptState, err, "marshal session state").WithOperation("SaveSession")
	}
	return atomicWrite(filepath.Join(root, sessionStateName), data)
}

// LoadSession reads the session state file, falling back to the .old
// rotation if the primary file is missing or marked unsuccessful.
func LoadSession(root string) (SessionState, error) {
	var s SessionState
	path := filepath.Join(root, sessionStateName)
	data, err := os.ReadFile(path)
	if err != nil || !unmarshalOK(data, &s) || !s.SaveSuccessful {
		oldData, oldErr := os.ReadFile(path + ".old")
		if oldErr != nil {
			if err != nil {
				return s, enginerr.Wrap(enginerr.CorruptState, err, "read session state").WithOperation("LoadSession")
			}
			return s, enginerr.New(enginerr.CorruptState, "session state marked unsuccessful and no .old backup exists").WithOperation("LoadSession")
		}
		if unmarshalErr := yaml.Unmarshal(oldData, &s); unmarshalErr != nil {
			return s, enginerr.Wrap(enginerr.CorruptState, unmarshalErr, "parse .old session state").WithOperation("LoadSession")
		}
	}
	return s, nil
}

func unmarshalOK(data []byte, s *SessionState) bool {
	return yaml.Unmarshal(data, s) == nil
}

// SaveCandidate atomically writes one candidate's structure.state inside
// its own directory under root.
func SaveCandidate(root string, c *candidate.Candidate) error {
	c.RLock()
	state := CandidateState{
		IDNumber:    c.IDNumber,
		Generation:  c.Generation,
		Index:       c.Index,
		Parents:     c.Parents,
		Cell:        c.Cell,
		Atoms:       c.Atoms,
		Energy:      c.Energy,
		Enthalpy:    c.Enthalpy,
		PV:          c.PV,
		Status:      c.Status,
		CurrentStep: c.CurrentStep,
		FailCount:   c.FailCount,
		Spacegroup:  c.Fingerprint.Spacegroup,
		DuplicateOf: c.DuplicateOf,
		LocalPath:   c.LocalPath,
		RemotePath:  c.RemotePath,
	}
	dir := c.LocalPath
	c.RUnlock()

	data, err := yaml.Marshal(state)
	if err != nil {
		return enginerr.Wrap(enginerr.CorruptState, err, "marshal candidate state").WithOperation("SaveCandidate")
	}

	dirPath := filepath.Join(root, dir)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return enginerr.Wrap(enginerr.CorruptState, err, "create candidate directory").WithOperation("SaveCandidate")
	}
	return atomicWrite(filepath.Join(dirPath, candidateStateName), data)
}

// LoadCandidate reads a candidate's state file from its directory,
// checking the legacy xtal.state name if structure.state is absent.
func LoadCandidate(root, dir string) (CandidateState, error) {
	var state CandidateState
	path := filepath.Join(root, dir, candidateStateName)
	data, err := os.ReadFile(path)
	if err != nil {
		legacyPath := filepath.Join(root, dir, legacyCandidateName)
		data, err = os.ReadFile(legacyPath)
		if err != nil {
			return state, enginerr.Wrapf(enginerr.CorruptState, err, "read candidate state in %s", dir).WithOperation("LoadCandidate")
		}
	}
	if err := yaml.Unmarshal(data, &state); err != nil {
		return state, enginerr.Wrapf(enginerr.CorruptState, err, "parse candidate state in %s", dir).WithOperation("LoadCandidate")
	}
	return state, nil
}

// SessionStateExists reports whether root has a primary or rotated session
// state file, the precondition load(path) checks before attempting a
// resume.
func SessionStateExists(root string) bool {
	path := filepath.Join(root, sessionStateName)
	if _, err := os.Stat(path); err == nil {
		return true
	}
	_, err := os.Stat(path + ".old")
	return err == nil
}

// LoadAllCandidates enumerates root's immediate subdirectories and loads
// every one containing a structure.state (or legacy xtal.state); a
// subdirectory with neither is skipped rather than treated as an error,
// since the session root may hold non-candidate entries.
func LoadAllCandidates(root string) ([]CandidateState, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.CorruptState, err, "read session root").WithOperation("LoadAllCandidates")
	}

	var states []CandidateState
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		state, err := LoadCandidate(root, e.Name())
		if err != nil {
			continue
		}
		states = append(states, state)
	}
	return states, nil
}

// atomicWrite writes data to a .tmp sibling of path, rotates any existing
// file at path to path+".old", and renames the tmp file into place. The
// rotation keeps exactly one prior generation of backup.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return enginerr.Wrapf(enginerr.CorruptState, err, "open %s", tmp).WithOperation("atomicWrite")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return enginerr.Wrapf(enginerr.CorruptState, err, "write %s", tmp).WithOperation("atomicWrite")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return enginerr.Wrapf(enginerr.CorruptState, err, "fsync %s", tmp).WithOperation("atomicWrite")
	}
	if err := f.Close(); err != nil {
		return enginerr.Wrapf(enginerr.CorruptState, err, "close %s", tmp).WithOperation("atomicWrite")
	}

	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".old"); err != nil {
			return enginerr.Wrapf(enginerr.CorruptState, err, "rotate %s", path).WithOperation("atomicWrite")
		}
	}

	if err := os.Rename(tmp, path); err != nil {
		return enginerr.Wrapf(enginerr.CorruptState, err, "rename %s into place", tmp).WithOperation("atomicWrite")
	}
	return nil
}

// CandidateDirName formats the directory name for a candidate, matching
// the GxI convention used throughout the session root.
func CandidateDirName(generation, id int) string {
	return fmt.Sprintf("%05dx%05d", generation, id)
}
