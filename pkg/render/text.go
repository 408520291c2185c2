package render

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sightlinehq/sightline-cli/pkg/annotate"
)

// ANSI styling codes used by the text renderer.
const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiDim   = "\033[2m"
	ansiCyan  = "\033[36m"
)

// ansiEscape matches SGR sequences so wrapping can measure visible width.
var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// TextRenderer writes annotated conversations as styled terminal text.
//
// Headings are underlined with a rule character chosen by level, list items
// get a bullet with hanging indent, emphasis renders bold and resolved
// citations render as "title (m:ss)" markers followed by the source id and
// absolute offset. Unresolved citations print inert, exactly as written.
type TextRenderer struct {
	opts Options
}

// NewTextRenderer creates a renderer with the given options.
func NewTextRenderer(opts Options) *TextRenderer {
	return &TextRenderer{opts: opts}
}

// RenderText annotates msgs against the registry snapshot and writes the
// styled conversation to w. Convenience wrapper around TextRenderer.
func RenderText(w io.Writer, msgs []annotate.RawMessage, registry annotate.Registry, opts Options) (*Stats, error) {
	return NewTextRenderer(opts).Render(w, msgs, registry)
}

// Render annotates every message and writes the styled conversation,
// returning the run statistics. Citation activation fires in render order,
// so a Collector injected through the options sees links exactly as they
// appear on screen.
func (r *TextRenderer) Render(w io.Writer, msgs []annotate.RawMessage, registry annotate.Registry) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}
	ew := &errWriter{w: w}

	for i, msg := range msgs {
		annotated := annotate.Annotate(msg, registry, r.opts.OnActivate)
		stats.observe(annotated)
		if i > 0 {
			ew.printf("\n")
		}
		r.writeMessage(ew, annotated)
	}
	if ew.err != nil {
		return nil, fmt.Errorf("writing render output: %w", ew.err)
	}

	stats.DurationMs = time.Since(start).Milliseconds()
	return stats, nil
}

// RenderMessage writes a single already-annotated message.
func (r *TextRenderer) RenderMessage(w io.Writer, msg annotate.AnnotatedMessage) error {
	ew := &errWriter{w: w}
	r.writeMessage(ew, msg)
	return ew.err
}

func (r *TextRenderer) writeMessage(ew *errWriter, msg annotate.AnnotatedMessage) {
	role := msg.Role
	if role == "" {
		role = "message"
	}
	ew.printf("%s\n", r.style("["+role+"]", ansiBold))

	for _, block := range msg.Blocks {
		r.writeBlock(ew, block)
	}
}

func (r *TextRenderer) writeBlock(ew *errWriter, block annotate.AnnotatedBlock) {
	switch block.Kind {
	case annotate.KindHeading:
		r.writeHeading(ew, block.Level, block.Text)
	case annotate.KindListItem:
		text := r.inlineText(block.Tokens)
		for _, line := range wrap(text, r.opts.Width, "  • ", "    ") {
			ew.printf("%s\n", line)
		}
	case annotate.KindBreak:
		ew.printf("\n")
	default:
		text := r.inlineText(block.Tokens)
		for _, line := range wrap(text, r.opts.Width, "", "") {
			ew.printf("%s\n", line)
		}
	}
}

func (r *TextRenderer) writeHeading(ew *errWriter, level int, text string) {
	ew.printf("%s\n", r.style(text, ansiBold))
	if n := utf8.RuneCountInString(text); n > 0 {
		ew.printf("%s\n", strings.Repeat(headingRule(level), n))
	}
}

// headingRule returns the underline character for a heading level.
func headingRule(level int) string {
	switch level {
	case 1:
		return "="
	case 2:
		return "-"
	default:
		return "~"
	}
}

// inlineText assembles one block's token stream into a styled string.
func (r *TextRenderer) inlineText(tokens []annotate.AnnotatedToken) string {
	var b strings.Builder
	for _, tok := range tokens {
		switch tok.Kind {
		case annotate.TokenEmphasis:
			b.WriteString(r.style(tok.Text, ansiBold))
		case annotate.TokenCitation:
			b.WriteString(r.citation(tok))
		default:
			b.WriteString(tok.Text)
		}
	}
	return b.String()
}

// citation renders one citation token and fires its activation so link
// collectors observe it. Inert citations keep their original label.
func (r *TextRenderer) citation(tok annotate.AnnotatedToken) string {
	res := tok.Resolved
	if res == nil || res.SourceID == "" {
		return tok.Raw
	}
	tok.Activate()

	marker := fmt.Sprintf("%s (%s:%s)", tok.RawTitle, res.DisplayMinutes, res.DisplaySeconds)
	ref := fmt.Sprintf("[%s @ %ds]", res.SourceID, res.AbsoluteSeconds)
	return r.style(marker, ansiCyan) + " " + r.style(ref, ansiDim)
}

// style wraps s in the given ANSI codes when color is enabled.
func (r *TextRenderer) style(s string, codes ...string) string {
	if !r.opts.Color || len(codes) == 0 {
		return s
	}
	return strings.Join(codes, "") + s + ansiReset
}

// wrap breaks text into lines no wider than width visible columns. The
// first line carries the head prefix, continuations the cont prefix; both
// count toward the width. ANSI escapes are measured as zero width. A
// non-positive width disables wrapping entirely.
func wrap(text string, width int, head, cont string) []string {
	if width <= 0 {
		return []string{head + text}
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{strings.TrimRight(head, " ")}
	}

	var lines []string
	line := head + words[0]
	for _, word := range words[1:] {
		if visibleLen(line)+1+visibleLen(word) > width {
			lines = append(lines, line)
			line = cont + word
			continue
		}
		line += " " + word
	}
	return append(lines, line)
}

// visibleLen counts the rune width of s with ANSI escapes stripped.
func visibleLen(s string) int {
	return utf8.RuneCountInString(ansiEscape.ReplaceAllString(s, ""))
}

// errWriter latches the first write error so render loops stay linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
