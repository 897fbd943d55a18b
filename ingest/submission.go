package ingest

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/indieinfra/plume/storage/entries"
)

// Submission is one upload as received from the submit form.
type Submission struct {
	// File must support seeking: detection reads it before it is queued.
	File        io.ReadSeeker
	Filename    string `form:"file"`
	Title       string `form:"title" validate:"max=500"`
	Description string `form:"description"`
	License     string `form:"license" validate:"omitempty,url"`
	Tags        string `form:"tags"`
	Slug        string `form:"slug" validate:"max=255"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("form"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Validate checks the text fields and parses the tags.
func (s *Submission) Validate(tagsMaxLength int) ([]entries.Tag, error) {
	var fe FieldError

	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		for _, ve := range verrs {
			fe.Add(ve.Field(), validationMessage(ve))
		}
	}

	tags, err := ParseTags(s.Tags, tagsMaxLength)
	var tle *TagLengthError
	if errors.As(err, &tle) {
		fe.Add("tags", fmt.Sprintf("Tags must be shorter than %d characters. Tags that are too long: %s",
			tle.Max, strings.Join(tle.Tags, ", ")))
	} else if err != nil {
		return nil, err
	}

	if !fe.Empty() {
		return nil, &fe
	}
	return tags, nil
}

func validationMessage(ve validator.FieldError) string {
	switch ve.Tag() {
	case "max":
		return fmt.Sprintf("Must be at most %s characters long.", ve.Param())
	case "url":
		return "Must be empty or a URL."
	default:
		return fmt.Sprintf("Failed the %q check.", ve.Tag())
	}
}

// NormalizeFilename replaces names containing non-ASCII characters with a
// random one that keeps the original extension.
func NormalizeFilename(name string) string {
	for _, r := range name {
		if r > unicode.MaxASCII {
			return uuid.NewString() + filepath.Ext(name)
		}
	}
	return name
}

type TagLengthError struct {
	Max  int
	Tags []string
}

func (e *TagLengthError) Error() string {
	return fmt.Sprintf("%d tags longer than %d characters", len(e.Tags), e.Max)
}

// ParseTags splits a comma-separated tag string. Blank and repeated tags are
// dropped; repeats are detected by slug.
func ParseTags(raw string, maxLength int) ([]entries.Tag, error) {
	var (
		tags    []entries.Tag
		seen    = map[string]bool{}
		tooLong []string
	)

	for _, part := range strings.Split(raw, ",") {
		name := strings.Join(strings.Fields(part), " ")
		if name == "" {
			continue
		}
		if maxLength > 0 && len(name) > maxLength {
			tooLong = append(tooLong, name)
			continue
		}

		s := slug.Make(name)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		tags = append(tags, entries.Tag{Name: name, Slug: s})
	}

	if len(tooLong) > 0 {
		return nil, &TagLengthError{Max: maxLength, Tags: tooLong}
	}
	return tags, nil
}
