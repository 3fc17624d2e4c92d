// Package roster maps recognizer candidate serials to enrolled identities.
package roster

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Entry is one enrolled person. Serial is the recognition model's label,
// ID the stable identity committed to the ledger, Name the display name.
type Entry struct {
	Serial int    `yaml:"serial"`
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
}

type rosterFile struct {
	Students []Entry `yaml:"students"`
}

// Roster is an immutable serial-to-identity directory.
type Roster struct {
	bySerial map[int]Entry
}

// Load parses a YAML roster. Duplicate serials are a configuration error:
// two identities behind one model label cannot be told apart.
func Load(r io.Reader) (*Roster, error) {
	var file rosterFile
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("roster: decode: %w", err)
	}

	bySerial := make(map[int]Entry, len(file.Students))
	for _, e := range file.Students {
		if e.ID == "" {
			return nil, fmt.Errorf("roster: serial %d has no id", e.Serial)
		}
		if _, dup := bySerial[e.Serial]; dup {
			return nil, fmt.Errorf("roster: duplicate serial %d", e.Serial)
		}
		bySerial[e.Serial] = e
	}
	return &Roster{bySerial: bySerial}, nil
}

// LoadFile loads a roster YAML from disk.
func LoadFile(path string) (*Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Lookup resolves a candidate serial. ok is false for serials the roster
// does not know; callers skip those rather than committing them.
func (r *Roster) Lookup(serial int) (identity, displayName string, ok bool) {
	e, ok := r.bySerial[serial]
	if !ok {
		return "", "", false
	}
	return e.ID, e.Name, true
}

// Len returns the number of enrolled identities.
func (r *Roster) Len() int { return len(r.bySerial) }
