// Package extract pulls camera fields out of raw listing and widget markup
// using precompiled regular expressions.
package extract

import (
	"fmt"
	"regexp"
)

// Field names a value the extractor knows how to find.
type Field string

const (
	// FieldCameraID matches the numeric data-camera-id attribute of a listing entry.
	FieldCameraID Field = "camera-id"

	// FieldCameraName matches the webcams_name heading of a listing entry.
	FieldCameraName Field = "camera-name"

	// FieldWidgetToken matches the query string of the sochi.camera widget script.
	FieldWidgetToken Field = "widget-token"
)

// valueGroup is the named capture group every pattern must expose.
const valueGroup = "value"

// DefaultPatterns are the patterns used by New.
var DefaultPatterns = map[Field]string{
	FieldCameraID:    `data-camera-id="(?P<value>[0-9]+)"`,
	FieldCameraName:  `<h3 class="webcams_name">(?P<value>.+?)</h3>`,
	FieldWidgetToken: `src="//sochi\.camera/widget/widget\.js\?(?P<value>.+?)">`,
}

// Extractor holds compiled patterns keyed by field. It is safe for concurrent use.
type Extractor struct {
	patterns map[Field]*regexp.Regexp
}

// New returns an Extractor for the default site markup.
func New() *Extractor {
	e, err := NewWithPatterns(DefaultPatterns)
	if err != nil {
		panic(err)
	}
	return e
}

// NewWithPatterns compiles custom patterns. Each pattern must contain a
// named group called "value".
func NewWithPatterns(patterns map[Field]string) (*Extractor, error) {
	compiled := make(map[Field]*regexp.Regexp, len(patterns))
	for field, expr := range patterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile %s pattern: %w", field, err)
		}
		if re.SubexpIndex(valueGroup) < 0 {
			return nil, fmt.Errorf("%s pattern has no (?P<%s>...) group", field, valueGroup)
		}
		compiled[field] = re
	}
	return &Extractor{patterns: compiled}, nil
}

// All returns every match of field in text, in document order.
// Unknown fields yield no matches.
func (e *Extractor) All(text string, field Field) []string {
	re, ok := e.patterns[field]
	if !ok {
		return nil
	}

	idx := re.SubexpIndex(valueGroup)
	matches := re.FindAllStringSubmatch(text, -1)
	values := make([]string, 0, len(matches))
	for _, m := range matches {
		values = append(values, m[idx])
	}
	return values
}

// First returns the first match of field in text, or "" when there is none.
func (e *Extractor) First(text string, field Field) string {
	re, ok := e.patterns[field]
	if !ok {
		return ""
	}

	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[re.SubexpIndex(valueGroup)]
}
