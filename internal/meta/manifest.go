package meta

import (
	"fmt"

	"tapedeck/internal/remote"
)

// File is one entry of a recording's file manifest.
type File struct {
	Name     string            `json:"name"`
	Source   string            `json:"source"`
	Format   string            `json:"format"`
	Title    string            `json:"title"`
	Original remote.FlexString `json:"original"`
	Track    remote.FlexString `json:"track"`
	Size     remote.FlexInt    `json:"size"`
	Length   remote.FlexString `json:"length"`

	// URL is set only by sources that hand out direct links (the paged show
	// API). Archive files derive their download URL from identifier + name.
	URL string `json:"url,omitempty"`
}

// Metadata carries the optional venue fields of a manifest.
type Metadata struct {
	Venue    remote.FlexString `json:"venue"`
	Coverage remote.FlexString `json:"coverage"`
}

// Manifest is the per-recording file list fetched on demand.
type Manifest struct {
	Files    []File   `json:"files"`
	Metadata Metadata `json:"metadata"`
}

// HasFiles reports whether the manifest carries a playable file list. A
// manifest without one marks the recording unplayable.
func (m *Manifest) HasFiles() bool {
	return m != nil && len(m.Files) > 0
}

// ParseError reports a malformed manifest. The owning recording is marked
// removed and the catalog continues.
type ParseError struct {
	Identifier string
	Reason     string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("manifest for %s: %s", e.Identifier, e.Reason)
}
