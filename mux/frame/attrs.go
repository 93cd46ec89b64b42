package frame

import (
	"fmt"
	"html"
	"strings"
)

var attrEscaper = strings.NewReplacer(
	`&`, "&amp;",
	`"`, "&quot;",
	`<`, "&lt;",
	`>`, "&gt;",
	"\n", "&#10;",
	"\r", "&#13;",
)

// Attr is a single key="value" pair on the attributes line.
type Attr struct {
	Key   string
	Value string
}

// Attrs is the ordered attributes line of a frame.
type Attrs []Attr

// Get returns the value of the first attribute named key.
func (a Attrs) Get(key string) (string, bool) {
	for _, attr := range a {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

// With returns a copy of a with key set to value, replacing an existing
// attribute of that name in place or appending a new one.
func (a Attrs) With(key, value string) Attrs {
	out := make(Attrs, len(a), len(a)+1)
	copy(out, a)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, Attr{Key: key, Value: value})
}

// String renders the attributes line without its newline.
func (a Attrs) String() string {
	var sb strings.Builder
	for i, attr := range a {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(attr.Key)
		sb.WriteString(`="`)
		sb.WriteString(attrEscaper.Replace(attr.Value))
		sb.WriteByte('"')
	}
	return sb.String()
}

// ParseAttrs parses an attributes line as rendered by Attrs.String.
func ParseAttrs(line string) (Attrs, error) {
	var attrs Attrs
	s := line
	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			return attrs, nil
		}
		eq := strings.IndexByte(s, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("malformed attribute in %q", line)
		}
		key := s[:eq]
		if !isToken(key) {
			return nil, fmt.Errorf("bad attribute name %q", key)
		}
		s = s[eq+1:]
		if s == "" || s[0] != '"' {
			return nil, fmt.Errorf("unquoted value for attribute %q", key)
		}
		end := strings.IndexByte(s[1:], '"')
		if end < 0 {
			return nil, fmt.Errorf("unterminated value for attribute %q", key)
		}
		attrs = append(attrs, Attr{
			Key:   key,
			Value: html.UnescapeString(s[1 : end+1]),
		})
		s = s[end+2:]
	}
}
