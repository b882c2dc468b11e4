// Package tagtmpl fills %%TAG%% placeholders in NEMO model templates.
package tagtmpl

import (
	"errors"
	"fmt"
	"strings"
)

// Marker opens and closes a tag.
const Marker = "%%"

// ErrMalformedTemplate covers empty tag names and unterminated markers.
var ErrMalformedTemplate = errors.New("malformed template")

// MissingValueError is returned when a tag resolves to nothing.
type MissingValueError struct {
	Tag string
}

func (e *MissingValueError) Error() string {
	return fmt.Sprintf("template tag %s: value empty or missing", e.Tag)
}

// ResolverFunc looks up the value of a tag. ok=false means the value is absent.
type ResolverFunc func(tag string) (value string, ok bool, err error)

// Populate returns template with every tag replaced by its resolved value.
func Populate(template string, resolve ResolverFunc) (string, error) {
	var out strings.Builder
	out.Grow(len(template))

	rest := template
	for {
		open := strings.Index(rest, Marker)
		if open < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		out.WriteString(rest[:open])
		rest = rest[open+len(Marker):]

		end := strings.Index(rest, Marker)
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated tag at offset %d", ErrMalformedTemplate, len(template)-len(rest)-len(Marker))
		}
		tag := strings.TrimSpace(rest[:end])
		rest = rest[end+len(Marker):]
		if tag == "" {
			return "", fmt.Errorf("%w: empty tag name", ErrMalformedTemplate)
		}

		value, ok, err := resolve(tag)
		if err != nil {
			return "", fmt.Errorf("template tag %s: %w", tag, err)
		}
		if !ok || strings.TrimSpace(value) == "" {
			return "", &MissingValueError{Tag: tag}
		}
		out.WriteString(value)
	}
}

// Tags lists the tag names in template in order of appearance.
func Tags(template string) ([]string, error) {
	var tags []string
	_, err := Populate(template, func(tag string) (string, bool, error) {
		tags = append(tags, tag)
		return tag, true, nil
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}
