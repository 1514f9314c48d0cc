package model

import (
	"encoding/json"
	"sort"
)

// GistFile describes one file inside a gist, as returned by the upstream
// listing API. Only RawURL is interpreted by the scanner; the rest ride
// along for clients.
type GistFile struct {
	Filename string `json:"filename"`
	Type     string `json:"type,omitempty"`
	Language string `json:"language,omitempty"`
	RawURL   string `json:"raw_url"`
	Size     int64  `json:"size,omitempty"`
}

// GistMetadata is the externally owned shape of one gist. The full upstream
// document is preserved verbatim in Raw so a match can be stored and later
// displayed without losing fields this service does not model.
type GistMetadata struct {
	ID    string
	Files map[string]GistFile
	Raw   json.RawMessage
}

// UnmarshalJSON decodes the fields the scanner needs and keeps the
// verbatim document alongside them.
func (g *GistMetadata) UnmarshalJSON(data []byte) error {
	var partial struct {
		ID    string              `json:"id"`
		Files map[string]GistFile `json:"files"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return err
	}
	g.ID = partial.ID
	g.Files = partial.Files
	g.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the verbatim upstream document when present.
func (g GistMetadata) MarshalJSON() ([]byte, error) {
	if len(g.Raw) > 0 {
		return g.Raw, nil
	}
	return json.Marshal(struct {
		ID    string              `json:"id"`
		Files map[string]GistFile `json:"files"`
	}{ID: g.ID, Files: g.Files})
}

// SortedFilenames returns the gist's file names in ascending order.
// Go map iteration is unordered; sorting keeps the scan (and therefore
// which file produces the first match) deterministic.
func (g *GistMetadata) SortedFilenames() []string {
	names := make([]string, 0, len(g.Files))
	for name := range g.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MatchResult is the full metadata of one gist whose content matched the
// job's pattern, stored verbatim and never mutated after the append.
type MatchResult = json.RawMessage
