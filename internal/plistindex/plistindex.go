// Package plistindex reads and writes the on-device Ringtones.plist index
// using Apple's binary/XML property-list format.
package plistindex

import (
	"bytes"
	"fmt"

	"howett.net/plist"
)

// Entry is one ringtone's plist record, keyed by remote filename in the
// root dictionary's "Ringtones" sub-dictionary.
type Entry struct {
	Name             string `plist:"Name"`
	TotalTimeMS      int64  `plist:"Total Time"`
	PID              int64  `plist:"PID"`
	ProtectedContent bool   `plist:"Protected Content"`
	GUID             int64  `plist:"GUID"`
}

// Index is the root plist document: a single "Ringtones" dictionary
// mapping remote filename to Entry.
type Index struct {
	Ringtones map[string]Entry `plist:"Ringtones"`
}

// Parse decodes an existing Ringtones.plist. An empty byte slice yields
// an empty Index rather than an error, matching the case where the
// device has no tones yet.
func Parse(data []byte) (Index, error) {
	if len(data) == 0 {
		return Index{Ringtones: map[string]Entry{}}, nil
	}
	var idx Index
	if _, err := plist.Unmarshal(data, &idx); err != nil {
		return Index{}, fmt.Errorf("plistindex: decode: %w", err)
	}
	if idx.Ringtones == nil {
		idx.Ringtones = map[string]Entry{}
	}
	return idx, nil
}

// Put inserts or replaces the entry for remoteFilename.
func (idx *Index) Put(remoteFilename string, entry Entry) {
	if idx.Ringtones == nil {
		idx.Ringtones = map[string]Entry{}
	}
	idx.Ringtones[remoteFilename] = entry
}

// Marshal encodes the index back to XML plist bytes, the format the
// consumer application's Ringtones.plist is shipped in.
func (idx Index) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	encoder := plist.NewEncoder(&buf)
	encoder.Indent("\t")
	if err := encoder.Encode(idx); err != nil {
		return nil, fmt.Errorf("plistindex: encode: %w", err)
	}
	return buf.Bytes(), nil
}
