// Package render fills {column} placeholders in subject and body
// templates from a row's values.
package render

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedTemplate is returned by Parse for unbalanced braces.
var ErrMalformedTemplate = errors.New("malformed template")

// KeyError reports a placeholder with no matching column in the row.
type KeyError struct {
	Key string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("missing placeholder value for: '%s'", e.Key)
}

type segment struct {
	text string
	key  bool
}

// Template is a parsed template, safe for concurrent use.
type Template struct {
	src  string
	segs []segment
}

// Parse compiles src. "{{" and "}}" are literal braces; the text between
// single braces is a column name taken verbatim.
func Parse(src string) (*Template, error) {
	var (
		segs []segment
		lit  strings.Builder
	)
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch c {
		case '{':
			if i+1 < len(src) && src[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexAny(src[i+1:], "{}")
			if end < 0 || src[i+1+end] != '}' {
				return nil, fmt.Errorf("%w: unclosed '{' at offset %d", ErrMalformedTemplate, i)
			}
			if end == 0 {
				return nil, fmt.Errorf("%w: empty placeholder at offset %d", ErrMalformedTemplate, i)
			}
			if lit.Len() > 0 {
				segs = append(segs, segment{text: lit.String()})
				lit.Reset()
			}
			segs = append(segs, segment{text: src[i+1 : i+1+end], key: true})
			i += end + 1
		case '}':
			if i+1 < len(src) && src[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("%w: single '}' at offset %d", ErrMalformedTemplate, i)
		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		segs = append(segs, segment{text: lit.String()})
	}
	return &Template{src: src, segs: segs}, nil
}

// Keys lists the placeholder names in order of appearance.
func (t *Template) Keys() []string {
	var keys []string
	for _, s := range t.segs {
		if s.key {
			keys = append(keys, s.text)
		}
	}
	return keys
}

// Execute substitutes values. The first placeholder without a value fails
// with *KeyError.
func (t *Template) Execute(values map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(t.src))
	for _, s := range t.segs {
		if !s.key {
			b.WriteString(s.text)
			continue
		}
		v, ok := values[s.text]
		if !ok {
			return "", &KeyError{Key: s.text}
		}
		b.WriteString(v)
	}
	return b.String(), nil
}
