package annotate

import (
	"regexp"
	"strings"
)

// List item regular expressions
var (
	// Matches an ordered item: 1. buy milk
	orderedItemRegex = regexp.MustCompile(`^\d+\. (.*)$`)

	// Matches an unordered item: - buy milk
	unorderedItemRegex = regexp.MustCompile(`^- (.*)$`)
)

// Segment splits a complete message into ordered block nodes, one per
// physical line. Consecutive paragraph lines stay separate nodes; nothing
// is merged across lines. Segment is total: every line classifies into
// some node kind, worst case a paragraph carrying the full line verbatim.
func Segment(text string) []BlockNode {
	lines := strings.Split(text, "\n")
	nodes := make([]BlockNode, 0, len(lines))
	for _, line := range lines {
		nodes = append(nodes, classifyLine(line))
	}
	return nodes
}

// classifyLine maps one line to its block node. Prefix checks run in
// fixed priority order: heading markers first (longest marker first so
// "### " never classifies as level 1), then list markers, then blank
// lines, then paragraph.
func classifyLine(line string) BlockNode {
	switch {
	case strings.HasPrefix(line, "### "):
		return BlockNode{Kind: KindHeading, Level: 3, Text: line[4:]}
	case strings.HasPrefix(line, "## "):
		return BlockNode{Kind: KindHeading, Level: 2, Text: line[3:]}
	case strings.HasPrefix(line, "# "):
		return BlockNode{Kind: KindHeading, Level: 1, Text: line[2:]}
	}

	if m := orderedItemRegex.FindStringSubmatch(line); m != nil {
		return BlockNode{Kind: KindListItem, Text: m[1]}
	}
	if m := unorderedItemRegex.FindStringSubmatch(line); m != nil {
		return BlockNode{Kind: KindListItem, Text: m[1]}
	}

	if strings.TrimSpace(line) == "" {
		return BlockNode{Kind: KindBreak}
	}

	return BlockNode{Kind: KindParagraph, Text: line}
}
