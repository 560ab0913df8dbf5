package reasoning

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

// Verdict is the strict escalation decision for one frame. It is
// all-or-nothing: a reply missing any field is not a verdict.
type Verdict struct {
	Escalate         bool     `json:"escalate"`
	NotifyRoles      []string `json:"notify_roles"`
	ShutdownRequired bool     `json:"shutdown_required"`
	Summary          string   `json:"summary"`

	// Attempts is the number of transport attempts it took to obtain the verdict.
	Attempts int `json:"-"`
}

const verdictSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Escalation verdict",
  "type": "object",
  "required": ["escalate", "notify_roles", "shutdown_required", "summary"],
  "properties": {
    "escalate": {"type": "boolean"},
    "notify_roles": {"type": "array", "items": {"type": "string"}},
    "shutdown_required": {"type": "boolean"},
    "summary": {"type": "string"}
  }
}`

var (
	verdictSchemaLoader = gojsonschema.NewStringLoader(verdictSchema)
	fenceMarker         = regexp.MustCompile("```(?:json|JSON)?")
	quoteReplacer       = strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`, "«", `"`, "»", `"`,
		"‘", "'", "’", "'",
	)
)

// StripFences removes code-fence markers and surrounding whitespace.
func StripFences(text string) string {
	return strings.TrimSpace(fenceMarker.ReplaceAllString(text, ""))
}

// Sanitize strips fences and maps typographic quotes to their ASCII forms.
func Sanitize(text string) string {
	return quoteReplacer.Replace(StripFences(text))
}

// requoteSingle rewrites single-quoted string literals that sit outside
// double-quoted strings as double-quoted ones, so {'a': 'b'} becomes
// {"a": "b"}. Apostrophes inside double-quoted strings are left alone.
func requoteSingle(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	const (
		outside = iota
		inDouble
		inSingle
	)
	state := outside
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch state {
		case outside:
			switch c {
			case '"':
				state = inDouble
			case '\'':
				state = inSingle
				c = '"'
			}
			b.WriteByte(c)
		case inDouble:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if c == '"' {
				state = outside
			}
		case inSingle:
			switch {
			case c == '\\' && i+1 < len(s) && s[i+1] == '\'':
				i++
				b.WriteByte('\'')
			case c == '\\' && i+1 < len(s):
				b.WriteByte(c)
				i++
				b.WriteByte(s[i])
			case c == '"':
				b.WriteString(`\"`)
			case c == '\'':
				state = outside
				b.WriteByte('"')
			default:
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

// ParseVerdict turns an untrusted reply into a Verdict. Single-quoted
// strings are requoted and JSON5 leniencies such as trailing commas are
// accepted; the result must then satisfy the verdict schema exactly. Every
// error wraps ErrParse.
func ParseVerdict(reply string) (*Verdict, error) {
	clean := requoteSingle(Sanitize(reply))
	if clean == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrParse)
	}

	var loose interface{}
	if err := json5.Unmarshal([]byte(clean), &loose); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	canonical, err := json.Marshal(loose)
	if err != nil {
		return nil, fmt.Errorf("%w: re-encoding reply: %w", ErrParse, err)
	}

	result, err := gojsonschema.Validate(verdictSchemaLoader, gojsonschema.NewBytesLoader(canonical))
	if err != nil {
		return nil, fmt.Errorf("%w: validating reply: %w", ErrParse, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrParse, strings.Join(msgs, "; "))
	}

	var v Verdict
	if err := json.Unmarshal(canonical, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return &v, nil
}
