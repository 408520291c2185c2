package render

import "github.com/sightlinehq/sightline-cli/pkg/annotate"

// Stats summarizes one render run. Citation counts split by resolution
// outcome: Resolved covers title matches, Fallback the first-record
// fallback, Unresolved the inert empty-registry case.
type Stats struct {
	Messages   int   `json:"messages" yaml:"messages"`
	Blocks     int   `json:"blocks" yaml:"blocks"`
	Tokens     int   `json:"tokens" yaml:"tokens"`
	Citations  int   `json:"citations" yaml:"citations"`
	Resolved   int   `json:"resolved" yaml:"resolved"`
	Fallback   int   `json:"fallback" yaml:"fallback"`
	Unresolved int   `json:"unresolved" yaml:"unresolved"`
	DurationMs int64 `json:"duration_ms" yaml:"duration_ms"`
}

// observe accumulates one annotated message into the totals.
func (s *Stats) observe(msg annotate.AnnotatedMessage) {
	s.Messages++
	s.Blocks += len(msg.Blocks)
	for _, block := range msg.Blocks {
		s.Tokens += len(block.Tokens)
		for _, tok := range block.Tokens {
			if tok.Kind != annotate.TokenCitation || tok.Resolved == nil {
				continue
			}
			s.Citations++
			switch tok.Resolved.Match {
			case annotate.MatchTitleContains, annotate.MatchTitlePrefix:
				s.Resolved++
			case annotate.MatchFallbackFirst:
				s.Fallback++
			default:
				s.Unresolved++
			}
		}
	}
}
