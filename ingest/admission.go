package ingest

import (
	"github.com/indieinfra/plume/config"
	"github.com/indieinfra/plume/storage/entries"
)

const (
	msgLimitReached = "Sorry, you have reached your upload limit."
	msgOverLimit    = "Sorry, uploading this file will put you over your upload limit."
	msgTooBig       = "Sorry, the file size is too big."
)

// EffectiveLimit is the user's own limit when set (>= 0), else the site
// default. A chosen limit of 0 means unlimited and is not replaced by the
// site default. ok is false whenever uploads are unlimited.
func EffectiveLimit(u *entries.User, site config.Uploads) (limit int64, ok bool) {
	switch {
	case u.UploadLimit >= 0:
		limit = u.UploadLimit
	case site.UploadLimit != nil:
		limit = *site.UploadLimit
	default:
		return -1, false
	}

	if limit == 0 {
		return -1, false
	}
	return limit, true
}

// CheckBeforeWrite refuses users whose running total already meets their
// limit, before any bytes are accepted.
func CheckBeforeWrite(u *entries.User, site config.Uploads) error {
	if limit, ok := EffectiveLimit(u, site); ok && u.Uploaded >= limit {
		return NewFieldError("file", msgLimitReached)
	}
	return nil
}

// CheckAfterWrite runs once the queued size is known. Every violated rule is
// reported.
func CheckAfterWrite(u *entries.User, site config.Uploads, size int64) error {
	var fe FieldError

	if site.MaxFileSize != nil && *site.MaxFileSize > 0 && size > *site.MaxFileSize {
		fe.Add("file", msgTooBig)
	}
	if limit, ok := EffectiveLimit(u, site); ok && u.Uploaded+size > limit {
		fe.Add("file", msgOverLimit)
	}

	if fe.Empty() {
		return nil
	}
	return &fe
}
