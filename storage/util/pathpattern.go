package util

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// PathPattern turns an entry's identity into a queue storage key.
// Supported placeholders:
//   - {year}, {month}, {day} - date parts of the entry's creation time
//   - {id}       - the entry id
//   - {name}     - the slugified file name without extension
//   - {ext}      - the lower-cased extension with its leading dot
//   - {filename} - {name}{ext}
//
// Example: "media_entries/{id}/{filename}" → "media_entries/42/holiday.jpg"
type PathPattern struct {
	pattern string
}

func NewPathPattern(pattern string) *PathPattern {
	return &PathPattern{pattern: pattern}
}

// Generate produces a slash-separated key. The id is required; keys that would
// escape the store root are refused.
func (p *PathPattern) Generate(id string, filename string, timestamp time.Time) (string, error) {
	if id == "" {
		return "", fmt.Errorf("id cannot be empty")
	}

	ext := strings.ToLower(path.Ext(filename))
	name := slug.Make(strings.TrimSuffix(filename, path.Ext(filename)))
	if name == "" {
		name = "upload"
	}

	result := p.pattern
	if !timestamp.IsZero() {
		result = strings.ReplaceAll(result, "{year}", fmt.Sprintf("%04d", timestamp.Year()))
		result = strings.ReplaceAll(result, "{month}", fmt.Sprintf("%02d", timestamp.Month()))
		result = strings.ReplaceAll(result, "{day}", fmt.Sprintf("%02d", timestamp.Day()))
	}

	result = strings.ReplaceAll(result, "{id}", id)
	result = strings.ReplaceAll(result, "{filename}", name+ext)
	result = strings.ReplaceAll(result, "{name}", name)
	result = strings.ReplaceAll(result, "{ext}", ext)

	result = path.Clean(result)
	if result == "." || strings.HasPrefix(result, "/") || result == ".." || strings.HasPrefix(result, "../") {
		return "", fmt.Errorf("pattern %q produced unsafe key %q", p.pattern, result)
	}

	return result, nil
}

func (p *PathPattern) String() string { return p.pattern }

// DefaultQueuePattern keeps every entry's bytes in its own directory.
func DefaultQueuePattern() *PathPattern {
	return NewPathPattern("media_entries/{id}/{filename}")
}
