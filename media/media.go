// Package media classifies uploaded files and owns the per-family managers
// that know how to process them.
//
// Detection runs in three tiers over a local copy of the upload: the
// type-match protocol (extension plus the manager's own sniffer), the legacy
// extension-only lookup, and finally every registered sniffer in
// registration order. The first tier to produce an answer wins.
package media

import "context"

// Manager is one media family (image, audio, video). Managers are
// registered once at start-up and never mutated.
type Manager interface {
	// Type is the identifier persisted on entries, e.g. "image".
	Type() string
	Name() string
	Extensions() []string
	// Sniffer returns nil when the manager trusts extension matches outright.
	Sniffer() Sniffer
	DefaultThumbnail() string
	Templates() Templates
	// Requirements lists external executables processing depends on.
	Requirements() []string
	// Process is the transcoding task entry point. It reads the queued file
	// and reports the metadata later served through OEmbed.
	Process(ctx context.Context, job Job) (Metadata, error)
}

// Templates names the page fragments a front end renders the media with.
type Templates struct {
	Display string `json:"display"`
	Embed   string `json:"embed"`
}

// Job is what a processing worker hands to Manager.Process.
type Job struct {
	EntryID  int64
	Filename string
	// Path is a local copy of the queued bytes.
	Path string
}

// Metadata is the subset of processing output the rest of plume cares about.
type Metadata struct {
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	MIMEType string  `json:"mime_type,omitempty"`
}

// Result is the outcome of a successful detection. It is never persisted;
// only Type is stored on the entry.
type Result struct {
	Type    string
	Manager Manager
	// Tier records which detection tier produced the answer (1, 2 or 3).
	Tier int
}
