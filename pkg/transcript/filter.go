package transcript

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/sightlinehq/sightline-cli/pkg/annotate"
)

// Filter fields.
const (
	FieldRole = "role"
	FieldHas  = "has"
	FieldText = "text"
)

// Annotation kinds accepted by has: terms.
var validHasValues = map[string]bool{
	"citation": true,
	"emphasis": true,
	"heading":  true,
	"list":     true,
}

// Term is one condition in a message filter. Bare words become text terms.
type Term struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Negated bool   `json:"negated"`
	Quoted  bool   `json:"quoted"`
}

// MessageFilter selects messages from a transcript. All terms must hold
// (implicit AND); a leading '-' negates a term.
type MessageFilter struct {
	Terms    []Term `json:"terms"`
	Original string `json:"original"`
}

// ParseError reports where in the filter expression parsing failed.
type ParseError struct {
	Message  string
	Position int
	Context  string
}

func (e *ParseError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("parse error at position %d: %s (near '%s')", e.Position, e.Message, e.Context)
	}
	return fmt.Sprintf("parse error at position %d: %s", e.Position, e.Message)
}

// ParseFilter parses a filter expression like:
//
//	role:assistant has:citation text:"sprint demo" budget
//
// Supported fields are role:, has: (citation|emphasis|heading|list) and
// text:; bare words are shorthand for text:. Values may be quoted to
// include spaces, and '-' before a term negates it.
func ParseFilter(input string) (*MessageFilter, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &ParseError{Message: "empty filter", Position: 0}
	}

	filter := &MessageFilter{Original: input}

	runes := []rune(input)
	n := len(runes)
	pos := 0

	for pos < n {
		// Skip whitespace
		for pos < n && unicode.IsSpace(runes[pos]) {
			pos++
		}
		if pos >= n {
			break
		}

		startPos := pos

		// Negation prefix
		negated := false
		if runes[pos] == '-' && pos+1 < n && !unicode.IsSpace(runes[pos+1]) {
			negated = true
			pos++
		}

		// Quoted bare term
		if runes[pos] == '"' {
			value, next, err := readQuoted(runes, pos, startPos)
			if err != nil {
				return nil, err
			}
			pos = next
			filter.Terms = append(filter.Terms, Term{Field: FieldText, Value: value, Negated: negated, Quoted: true})
			continue
		}

		// Read until whitespace or quote
		var sb strings.Builder
		for pos < n && !unicode.IsSpace(runes[pos]) && runes[pos] != '"' {
			sb.WriteRune(runes[pos])
			pos++
		}
		word := sb.String()
		if word == "" {
			continue
		}

		colonIdx := strings.Index(word, ":")
		if colonIdx <= 0 {
			// Bare word is a text term
			filter.Terms = append(filter.Terms, Term{Field: FieldText, Value: word, Negated: negated})
			continue
		}

		key := strings.ToLower(word[:colonIdx])
		value := word[colonIdx+1:]
		quoted := false

		// Quoted value after the colon: has:"..." style
		if value == "" && pos < n && runes[pos] == '"' {
			v, next, err := readQuoted(runes, pos, startPos)
			if err != nil {
				return nil, err
			}
			value = v
			pos = next
			quoted = true
		}

		term, err := makeTerm(key, value, negated, quoted, startPos)
		if err != nil {
			return nil, err
		}
		filter.Terms = append(filter.Terms, term)
	}

	if len(filter.Terms) == 0 {
		return nil, &ParseError{Message: "empty filter", Position: 0}
	}

	return filter, nil
}

// readQuoted consumes a double-quoted run starting at runes[pos] == '"',
// honouring backslash escapes. Returns the unquoted value and the position
// after the closing quote.
func readQuoted(runes []rune, pos, startPos int) (string, int, error) {
	n := len(runes)
	pos++ // opening quote
	var sb strings.Builder
	for pos < n && runes[pos] != '"' {
		if runes[pos] == '\\' && pos+1 < n {
			pos++
		}
		sb.WriteRune(runes[pos])
		pos++
	}
	if pos >= n {
		end := startPos + 20
		if end > n {
			end = n
		}
		return "", 0, &ParseError{
			Message:  "unclosed quoted string",
			Position: startPos,
			Context:  string(runes[startPos:end]),
		}
	}
	pos++ // closing quote
	return sb.String(), pos, nil
}

// makeTerm validates a key:value pair against the known fields.
func makeTerm(key, value string, negated, quoted bool, position int) (Term, error) {
	switch key {
	case FieldRole:
		if value == "" {
			return Term{}, &ParseError{Message: "role: needs a value", Position: position, Context: "role:"}
		}
		return Term{Field: FieldRole, Value: strings.ToLower(value), Negated: negated, Quoted: quoted}, nil
	case FieldHas:
		v := strings.ToLower(value)
		if !validHasValues[v] {
			return Term{}, &ParseError{
				Message:  fmt.Sprintf("has: accepts citation, emphasis, heading or list, got %q", value),
				Position: position,
				Context:  "has:" + value,
			}
		}
		return Term{Field: FieldHas, Value: v, Negated: negated, Quoted: quoted}, nil
	case FieldText:
		return Term{Field: FieldText, Value: value, Negated: negated, Quoted: quoted}, nil
	default:
		return Term{}, &ParseError{
			Message:  fmt.Sprintf("unknown filter field %q", key),
			Position: position,
			Context:  key + ":" + value,
		}
	}
}

// Matches reports whether one message satisfies every term.
func (f *MessageFilter) Matches(msg annotate.RawMessage) bool {
	for _, term := range f.Terms {
		if termMatches(term, msg) == term.Negated {
			return false
		}
	}
	return true
}

// Apply returns the messages that satisfy the filter, preserving order.
func (f *MessageFilter) Apply(messages []annotate.RawMessage) []annotate.RawMessage {
	var out []annotate.RawMessage
	for _, msg := range messages {
		if f.Matches(msg) {
			out = append(out, msg)
		}
	}
	return out
}

func termMatches(term Term, msg annotate.RawMessage) bool {
	switch term.Field {
	case FieldRole:
		return strings.EqualFold(msg.Role, term.Value)
	case FieldHas:
		return hasAnnotation(msg.Content, term.Value)
	default:
		return strings.Contains(strings.ToLower(msg.Content), strings.ToLower(term.Value))
	}
}

// hasAnnotation segments the content and checks for one annotation kind.
func hasAnnotation(content, kind string) bool {
	for _, node := range annotate.Segment(content) {
		switch kind {
		case "heading":
			if node.Kind == annotate.KindHeading {
				return true
			}
		case "list":
			if node.Kind == annotate.KindListItem {
				return true
			}
		case "citation", "emphasis":
			if node.Kind != annotate.KindParagraph && node.Kind != annotate.KindListItem {
				continue
			}
			for _, tok := range annotate.ExtractInline(node.Text) {
				if kind == "citation" && tok.Kind == annotate.TokenCitation {
					return true
				}
				if kind == "emphasis" && tok.Kind == annotate.TokenEmphasis {
					return true
				}
			}
		}
	}
	return false
}
