package common

import (
	"time"

	"github.com/indieinfra/plume/media"
	"github.com/indieinfra/plume/storage/entries"
)

// EntryView is the public JSON shape of an entry. Storage details such as
// the queue key stay internal.
type EntryView struct {
	ID          int64          `json:"id"`
	Owner       string         `json:"owner"`
	URL         string         `json:"url"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	License     string         `json:"license,omitempty"`
	Tags        []entries.Tag  `json:"tags"`
	MediaType   string         `json:"media_type"`
	Slug        *string        `json:"slug"`
	State       entries.State  `json:"state"`
	FileSize    int64          `json:"file_size"`
	Metadata    media.Metadata `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`

	// Presentation hints from the media type's manager; empty when the
	// type is not enabled on this server.
	DefaultThumbnail string           `json:"default_thumbnail,omitempty"`
	Templates        *media.Templates `json:"templates,omitempty"`
}

// NewEntryView builds the view of e. m may be nil.
func NewEntryView(owner, url string, e *entries.Entry, m media.Manager) EntryView {
	tags := e.Tags
	if tags == nil {
		tags = []entries.Tag{}
	}

	v := EntryView{
		ID:          e.ID,
		Owner:       owner,
		URL:         url,
		Title:       e.Title,
		Description: e.Description,
		License:     e.License,
		Tags:        tags,
		MediaType:   e.MediaType,
		Slug:        e.Slug,
		State:       e.State,
		FileSize:    e.FileSize,
		Metadata:    e.Metadata,
		CreatedAt:   e.CreatedAt.UTC(),
	}

	if m != nil {
		v.DefaultThumbnail = m.DefaultThumbnail()
		tpl := m.Templates()
		v.Templates = &tpl
	}
	return v
}
