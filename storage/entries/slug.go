package entries

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// MaxSlugLength bounds generated slugs so they fit the slug column.
const MaxSlugLength = 200

var (
	slugStrip  = regexp.MustCompile(`[^a-z0-9\-\s]`)
	slugSpaces = regexp.MustCompile(`[\s\-]+`)
)

// newSuffix returns random hex used to break slug collisions. Tests pin it.
var newSuffix = func() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NormalizeSlug reduces s to lower-case ASCII letters, digits and single
// hyphens. It returns "" when nothing usable is left.
func NormalizeSlug(s string) string {
	s = strings.ToLower(s)
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(strings.TrimSpace(s), "-")
	s = strings.Trim(s, "-")

	if len(s) > MaxSlugLength {
		s = strings.TrimRight(s[:MaxSlugLength], "-")
	}

	if !slug.IsSlug(s) {
		return ""
	}
	return s
}

// GenerateSlug picks the slug for entry id. A requested slug that normalizes
// cleanly and is free is kept; otherwise one is derived from the title. A
// title with nothing usable yields nil. Collisions get "-<id>" and then a
// growing random suffix, so the only possible error is from taken.
func GenerateSlug(title, requested string, id int64, taken func(string) (bool, error)) (*string, error) {
	if s := NormalizeSlug(requested); s != "" {
		used, err := taken(s)
		if err != nil {
			return nil, err
		}
		if !used {
			return &s, nil
		}
	}

	base := NormalizeSlug(title)
	if base == "" {
		return nil, nil
	}

	free := func(c string) (*string, error) {
		used, err := taken(c)
		if err != nil || used {
			return nil, err
		}
		return &c, nil
	}

	for _, c := range []string{base, fmt.Sprintf("%s-%d", base, id)} {
		if s, err := free(c); s != nil || err != nil {
			return s, err
		}
	}

	for {
		suffix := newSuffix()
		for n := 4; n <= len(suffix); n += 4 {
			if s, err := free(base + "-" + suffix[:n]); s != nil || err != nil {
				return s, err
			}
		}
	}
}
