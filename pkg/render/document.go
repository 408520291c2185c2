package render

import (
	"time"

	"github.com/sightlinehq/sightline-cli/pkg/annotate"
)

// Document is the machine-readable form of a rendered conversation: the
// full annotated node tree plus per-message citation summaries, the
// registry snapshot the run resolved against, and the run totals. It is
// what `sightline render --output json|yaml` marshals.
type Document struct {
	GeneratedAt time.Time         `json:"generated_at" yaml:"generated_at"`
	Sources     annotate.Registry `json:"sources,omitempty" yaml:"sources,omitempty"`
	Messages    []DocumentMessage `json:"messages" yaml:"messages"`
	Stats       Stats             `json:"stats" yaml:"stats"`
}

// DocumentMessage is one annotated message with its citation summaries in
// render order.
type DocumentMessage struct {
	annotate.AnnotatedMessage `yaml:",inline"`

	Citations []CitationSummary `json:"citations,omitempty" yaml:"citations,omitempty"`
}

// CitationSummary is one citation occurrence with its resolution outcome
// and, when resolved, the deep link a click would follow.
type CitationSummary struct {
	Title           string             `json:"title" yaml:"title"`
	SourceID        string             `json:"source_id,omitempty" yaml:"source_id,omitempty"`
	AbsoluteSeconds int                `json:"absolute_seconds" yaml:"absolute_seconds"`
	Match           annotate.MatchType `json:"match" yaml:"match"`
	Link            string             `json:"link,omitempty" yaml:"link,omitempty"`
}

// BuildDocument annotates msgs against the registry snapshot and returns
// the document form. Citation activation fires in document order, so a
// Collector injected through the options observes the same links the
// summaries carry.
func BuildDocument(msgs []annotate.RawMessage, registry annotate.Registry, opts Options) *Document {
	start := time.Now()
	doc := &Document{
		GeneratedAt: start.UTC(),
		Sources:     registry,
		Messages:    make([]DocumentMessage, 0, len(msgs)),
	}

	for _, msg := range msgs {
		annotated := annotate.Annotate(msg, registry, opts.OnActivate)
		doc.Stats.observe(annotated)
		doc.Messages = append(doc.Messages, DocumentMessage{
			AnnotatedMessage: annotated,
			Citations:        summarizeCitations(annotated, opts.scheme()),
		})
	}

	doc.Stats.DurationMs = time.Since(start).Milliseconds()
	return doc
}

// summarizeCitations walks one message's citation tokens, firing each
// activation and building its summary row.
func summarizeCitations(msg annotate.AnnotatedMessage, scheme string) []CitationSummary {
	var cites []CitationSummary
	for _, block := range msg.Blocks {
		for _, tok := range block.Tokens {
			if tok.Kind != annotate.TokenCitation || tok.Resolved == nil {
				continue
			}
			tok.Activate()

			res := tok.Resolved
			summary := CitationSummary{
				Title:           tok.RawTitle,
				SourceID:        res.SourceID,
				AbsoluteSeconds: res.AbsoluteSeconds,
				Match:           res.Match,
			}
			if res.SourceID != "" {
				summary.Link = DeepLink(scheme, res.SourceID, res.AbsoluteSeconds)
			}
			cites = append(cites, summary)
		}
	}
	return cites
}
