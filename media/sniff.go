package media

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
)

// Verdict is the three-valued answer of a content sniffer.
type Verdict int

const (
	// Unknown means "not mine"; detection moves on.
	Unknown Verdict = iota
	Accept
	// Reject means the sniffer positively identified a wrong or corrupt
	// file. Detection stops.
	Reject
)

func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// Sniffer inspects a candidate file. With Reject the error is the reason;
// with Unknown a non-nil error explains why the sniffer passed.
type Sniffer func(c *Candidate) (Verdict, error)

// Candidate is the local, seekable copy of an upload that sniffers inspect.
// Content detection runs at most once and only when a sniffer asks for it.
type Candidate struct {
	Path      string
	Filename  string
	Extension string
	Size      int64

	once sync.Once
	mime *mimetype.MIME
	err  error
}

func NewCandidate(path, filename string, size int64) *Candidate {
	return &Candidate{Path: path, Filename: filename, Extension: Extension(filename), Size: size}
}

// MIME detects the content type of the candidate's bytes.
func (c *Candidate) MIME() (*mimetype.MIME, error) {
	c.once.Do(func() {
		c.mime, c.err = mimetype.DetectFile(c.Path)
	})
	return c.mime, c.err
}

// Inspected reports whether any sniffer has read the candidate's bytes.
func (c *Candidate) Inspected() bool {
	return c.mime != nil || c.err != nil
}

// Extension returns the lower-cased text after the last dot of filename, or
// "" when the name has no dot or only a leading one.
func Extension(filename string) string {
	if strings.IndexByte(filename, '.') <= 0 {
		return ""
	}

	i := strings.LastIndexByte(filename, '.')
	return strings.ToLower(filename[i+1:])
}

const octetStream = "application/octet-stream"

var errEmptyFile = errors.New("file is empty")

// familySniffer builds a sniffer that accepts content under the given MIME
// family prefix (e.g. "audio/") and the listed ambiguous container types.
// It only rejects when the upload claims one of exts but the content was
// positively identified as something else.
func familySniffer(family string, exts []string, ambiguous ...string) Sniffer {
	return func(c *Candidate) (Verdict, error) {
		claims := slices.Contains(exts, c.Extension)

		if c.Size == 0 {
			if claims {
				return Reject, errEmptyFile
			}
			return Unknown, nil
		}

		m, err := c.MIME()
		if err != nil {
			return Unknown, err
		}

		if inFamily(m, family) || slices.ContainsFunc(ambiguous, m.Is) {
			return Accept, nil
		}

		if claims && !m.Is(octetStream) {
			return Reject, fmt.Errorf("content is %s", m.String())
		}

		return Unknown, fmt.Errorf("content is %s", m.String())
	}
}

func inFamily(m *mimetype.MIME, family string) bool {
	for p := m; p != nil; p = p.Parent() {
		if strings.HasPrefix(p.String(), family) {
			return true
		}
	}
	return false
}
