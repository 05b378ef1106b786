package peers

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const jsonContactPath = "contacts.json"

// JSONContacts is used to provide bootstrap-contact persistence on disk in
// the form of a JSON file. This allows human operators to manipulate the
// file.
type JSONContacts struct {
	l    sync.Mutex
	path string
}

// NewJSONContacts creates a new JSONContacts store under the given base
// directory.
func NewJSONContacts(base string) *JSONContacts {
	return &JSONContacts{
		path: filepath.Join(base, jsonContactPath),
	}
}

// Contacts reads the contact list from the file.
func (j *JSONContacts) Contacts() ([]Peer, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := os.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	if len(buf) == 0 {
		return nil, nil
	}

	var contacts []Peer
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&contacts); err != nil {
		return nil, err
	}

	return contacts, nil
}

// SetContacts writes the contact list out as JSON.
func (j *JSONContacts) SetContacts(contacts []Peer) error {
	j.l.Lock()
	defer j.l.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(contacts); err != nil {
		return err
	}

	return os.WriteFile(j.path, buf.Bytes(), 0755)
}
