package annotate

import (
	"regexp"
	"sort"
)

// Inline annotation regular expressions
var (
	// Matches an emphasis span: **important**
	// Content is one or more non-asterisk characters, so spans cannot nest
	// and the non-greedy quantifier keeps adjacent spans separate.
	emphasisRegex = regexp.MustCompile(`\*\*([^*]+?)\*\*`)

	// Matches a time-coded citation: [My Video 2:05]
	// Title is any run excluding ']', minutes are 1-2 digits, seconds are
	// exactly 2 digits. Malformed digit counts simply fail to match and the
	// span stays plain text.
	citationRegex = regexp.MustCompile(`\[([^\]]+) (\d{1,2}):(\d{2})\]`)
)

// match is one annotation span found within a line, carrying the token it
// classifies into.
type match struct {
	start int
	end   int
	token InlineToken
}

// ExtractInline finds emphasis and citation spans within one line and
// returns the full token stream in start-offset order, with literal runs
// filling the gaps between annotations. When a line contains no
// annotations the result is a single literal covering the whole line.
//
// The two span kinds are found independently and then merged by offset. A
// citation lying inside an emphasis span's delimiters is therefore emitted
// twice, once inside each overlapping token; the walk never suppresses a
// match, it only skips the gap literal when the previous match already
// consumed past the next start offset.
func ExtractInline(line string) []InlineToken {
	matches := findEmphasis(line)
	matches = append(matches, findCitations(line)...)

	if len(matches) == 0 {
		return []InlineToken{{Kind: TokenLiteral, Start: 0, Raw: line, Text: line}}
	}

	// The two kinds never share a start offset (one opens with '*', the
	// other with '['), so ordering by start alone is deterministic.
	sort.Slice(matches, func(i, j int) bool { return matches[i].start < matches[j].start })

	tokens := make([]InlineToken, 0, len(matches)*2+1)
	cursor := 0
	for _, m := range matches {
		if m.start > cursor {
			gap := line[cursor:m.start]
			tokens = append(tokens, InlineToken{Kind: TokenLiteral, Start: cursor, Raw: gap, Text: gap})
		}
		tokens = append(tokens, m.token)
		cursor = m.end
	}
	if cursor < len(line) {
		tail := line[cursor:]
		tokens = append(tokens, InlineToken{Kind: TokenLiteral, Start: cursor, Raw: tail, Text: tail})
	}

	return tokens
}

// findEmphasis collects all emphasis spans in one left-to-right scan.
func findEmphasis(line string) []match {
	var matches []match
	for _, idx := range emphasisRegex.FindAllStringSubmatchIndex(line, -1) {
		start, end := idx[0], idx[1]
		matches = append(matches, match{
			start: start,
			end:   end,
			token: InlineToken{
				Kind:  TokenEmphasis,
				Start: start,
				Raw:   line[start:end],
				Text:  line[idx[2]:idx[3]],
			},
		})
	}
	return matches
}

// findCitations collects all citation spans in one left-to-right scan.
// Digit groups are kept as written; resolution parses them later.
func findCitations(line string) []match {
	var matches []match
	for _, idx := range citationRegex.FindAllStringSubmatchIndex(line, -1) {
		start, end := idx[0], idx[1]
		matches = append(matches, match{
			start: start,
			end:   end,
			token: InlineToken{
				Kind:     TokenCitation,
				Start:    start,
				Raw:      line[start:end],
				RawTitle: line[idx[2]:idx[3]],
				Minutes:  line[idx[4]:idx[5]],
				Seconds:  line[idx[6]:idx[7]],
			},
		})
	}
	return matches
}
