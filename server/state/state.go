package state

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/indieinfra/plume/config"
	"github.com/indieinfra/plume/ingest"
	"github.com/indieinfra/plume/media"
	"github.com/indieinfra/plume/storage/entries"
	storageutil "github.com/indieinfra/plume/storage/util"
)

type Submitter interface {
	Submit(ctx context.Context, owner *entries.User, sub ingest.Submission) (*entries.Entry, error)
}

type PlumeState struct {
	Cfg       *config.Config
	Store     entries.Store
	Submitter Submitter
	Registry  *media.Registry
	Log       *zap.Logger
}

// Manager returns the registered manager for mediaType, or nil when the type
// is no longer enabled.
func (st *PlumeState) Manager(mediaType string) media.Manager {
	if st.Registry == nil {
		return nil
	}
	m, err := st.Registry.Manager(mediaType)
	if err != nil {
		return nil
	}
	return m
}

// AbsoluteURL prefixes a site-relative path with the public URL.
func (st *PlumeState) AbsoluteURL(path string) string {
	return storageutil.NormalizeBaseURL(st.Cfg.Server.PublicUrl) + strings.TrimPrefix(path, "/")
}
