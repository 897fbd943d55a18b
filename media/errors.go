package media

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTypeNotFound means no tier could classify the upload. User-facing.
	ErrTypeNotFound = errors.New("could not extract any file extension from upload or no media type matched it")
	// ErrContentMismatch means a sniffer actively rejected the bytes. User-facing.
	ErrContentMismatch = errors.New("file content does not match its declared type")
	// ErrMissingComponents means a manager matched but its external tooling is
	// absent. Operator-facing; never reported as an unsupported file.
	ErrMissingComponents = errors.New("media type is missing required components")
	ErrUnknownMediaType  = errors.New("unknown media type")
)

// TypeNotFoundError carries what every tier saw before giving up.
type TypeNotFoundError struct {
	Filename  string
	Extension string
	// Consulted lists the managers whose sniffers were run, in order.
	Consulted []string
	// Reasons holds any explanations sniffers gave for not accepting.
	Reasons []string
}

func (e *TypeNotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no media type found for %q", e.Filename)
	if e.Extension != "" {
		fmt.Fprintf(&b, " (extension %q)", e.Extension)
	}
	if len(e.Consulted) > 0 {
		fmt.Fprintf(&b, "; consulted %s", strings.Join(e.Consulted, ", "))
	}
	if len(e.Reasons) > 0 {
		fmt.Fprintf(&b, "; %s", strings.Join(e.Reasons, "; "))
	}
	return b.String()
}

func (e *TypeNotFoundError) Is(target error) bool { return target == ErrTypeNotFound }

type ContentMismatchError struct {
	MediaType string
	Reason    error
}

func (e *ContentMismatchError) Error() string {
	return fmt.Sprintf("%s sniffer rejected upload: %v", e.MediaType, e.Reason)
}

func (e *ContentMismatchError) Is(target error) bool { return target == ErrContentMismatch }

func (e *ContentMismatchError) Unwrap() error { return e.Reason }

type MissingComponentsError struct {
	MediaType string
	Missing   []string
}

func (e *MissingComponentsError) Error() string {
	return fmt.Sprintf("%s media type cannot be processed, missing: %s", e.MediaType, strings.Join(e.Missing, ", "))
}

func (e *MissingComponentsError) Is(target error) bool { return target == ErrMissingComponents }

// IsUnsupported reports whether err should be shown to the uploader as an
// unsupported or invalid file.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrTypeNotFound) || errors.Is(err, ErrContentMismatch)
}
