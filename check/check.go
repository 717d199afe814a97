// Package check provides message predicates that test fields of a message body.
//
// Field paths use gjson syntax and are resolved against the message body, so
// for a fedmsg envelope {"msg": {"build": {"owner": "bob"}}} the owner is at
// "build.owner".
package check

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/casualjim/hubtrigger/messages"
	"github.com/casualjim/hubtrigger/mux"
)

// ErrEmptyField is returned when a check is built without a field path.
var ErrEmptyField = errors.New("field cannot be empty")

type fieldCheck struct {
	path     string
	expected string
}

// Field matches when the value at path renders exactly as expected.
func Field(path, expected string) mux.Predicate {
	return fieldCheck{path: path, expected: expected}
}

func (c fieldCheck) Evaluate(msg messages.Message) (bool, error) {
	v := msg.Get(c.path)
	if !v.Exists() {
		return false, nil
	}
	return v.String() == c.expected, nil
}

func (c fieldCheck) String() string {
	return fmt.Sprintf("%s == %q", c.path, c.expected)
}

type regexpCheck struct {
	path    string
	pattern *regexp.Regexp
}

// Regexp matches when the whole value at path matches pattern.
func Regexp(path, pattern string) (mux.Predicate, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", path, err)
	}
	return regexpCheck{path: path, pattern: re}, nil
}

func (c regexpCheck) Evaluate(msg messages.Message) (bool, error) {
	v := msg.Get(c.path)
	if !v.Exists() {
		return false, nil
	}
	return c.pattern.MatchString(v.String()), nil
}

func (c regexpCheck) String() string {
	return fmt.Sprintf("%s =~ %s", c.path, c.pattern)
}

type existsCheck struct {
	path string
}

// Exists matches when the body has a value at path.
func Exists(path string) mux.Predicate {
	return existsCheck{path: path}
}

func (c existsCheck) Evaluate(msg messages.Message) (bool, error) {
	return msg.Get(c.path).Exists(), nil
}

func (c existsCheck) String() string {
	return c.path + " exists"
}

// Spec is the serializable form of a check.
type Spec struct {
	Field    string `yaml:"field" json:"field"`
	Expected string `yaml:"expected,omitempty" json:"expected,omitempty"`
	// Regexp treats Expected as a pattern that must match the whole value.
	Regexp bool `yaml:"regexp,omitempty" json:"regexp,omitempty"`
}

// Validate rejects specs that cannot be built.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Field) == "" {
		return ErrEmptyField
	}
	return nil
}

// Predicate builds the predicate described by s. A spec without an expected
// value checks for presence only.
func (s Spec) Predicate() (mux.Predicate, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	field := strings.TrimSpace(s.Field)
	switch {
	case s.Regexp:
		return Regexp(field, s.Expected)
	case s.Expected == "":
		return Exists(field), nil
	default:
		return Field(field, s.Expected), nil
	}
}

// Compile builds predicates for every spec, in order.
func Compile(specs []Spec) ([]mux.Predicate, error) {
	preds := make([]mux.Predicate, 0, len(specs))
	for i, s := range specs {
		p, err := s.Predicate()
		if err != nil {
			return nil, fmt.Errorf("check %d: %w", i, err)
		}
		preds = append(preds, p)
	}
	return preds, nil
}
