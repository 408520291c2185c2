package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// citationToken builds a citation token the way ExtractInline would.
func citationToken(t *testing.T, line string) InlineToken {
	t.Helper()
	tokens := ExtractInline(line)
	require.Len(t, tokens, 1)
	require.Equal(t, TokenCitation, tokens[0].Kind)
	return tokens[0]
}

func TestResolveCitation_TitleContains(t *testing.T) {
	registry := Registry{{ID: "s1", Title: "My Video Full Title"}}
	tok := citationToken(t, "[My Video 2:05]")

	resolved := ResolveCitation(tok, registry)

	assert.Equal(t, "s1", resolved.SourceID)
	assert.Equal(t, 125, resolved.AbsoluteSeconds)
	assert.Equal(t, MatchTitleContains, resolved.Match)
}

func TestResolveCitation_PrefixMatch(t *testing.T) {
	// The record title is not contained in the citation title, but its
	// first ten characters are.
	registry := Registry{{ID: "s7", Title: "Quarterly Review 2026"}}
	tok := citationToken(t, "[Quarterly Review (copy) 4:10]")

	resolved := ResolveCitation(tok, registry)

	assert.Equal(t, "s7", resolved.SourceID)
	assert.Equal(t, MatchTitlePrefix, resolved.Match)
	assert.Equal(t, 250, resolved.AbsoluteSeconds)
}

func TestResolveCitation_ShortRecordTitlePrefix(t *testing.T) {
	// Record titles shorter than the prefix length match on the whole title.
	registry := Registry{{ID: "s2", Title: "Demo"}}
	tok := citationToken(t, "[Demo recording of the sprint 0:45]")

	resolved := ResolveCitation(tok, registry)

	assert.Equal(t, "s2", resolved.SourceID)
	assert.Equal(t, MatchTitlePrefix, resolved.Match)
}

func TestResolveCitation_FirstMatchWins(t *testing.T) {
	// No scoring and no disambiguation: the first plausible record is
	// taken even when a later one matches equally well.
	registry := Registry{
		{ID: "march", Title: "Sprint Demo March"},
		{ID: "april", Title: "Sprint Demo April"},
	}
	tok := citationToken(t, "[Sprint Demo 3:00]")

	resolved := ResolveCitation(tok, registry)

	assert.Equal(t, "march", resolved.SourceID)
	assert.Equal(t, MatchTitleContains, resolved.Match)
}

func TestResolveCitation_FallbackFirst(t *testing.T) {
	registry := Registry{
		{ID: "s1", Title: "Alpha"},
		{ID: "s2", Title: "Beta"},
	}
	tok := citationToken(t, "[Unknown 0:30]")

	resolved := ResolveCitation(tok, registry)

	assert.Equal(t, "s1", resolved.SourceID)
	assert.Equal(t, 30, resolved.AbsoluteSeconds)
	assert.Equal(t, MatchFallbackFirst, resolved.Match)
}

func TestResolveCitation_EmptyRegistry(t *testing.T) {
	tok := citationToken(t, "[Anything 5:00]")

	// Resolution against an empty registry is deterministic: empty source
	// id, offset still computed, no panic.
	for i := 0; i < 3; i++ {
		resolved := ResolveCitation(tok, Registry{})

		assert.Equal(t, "", resolved.SourceID)
		assert.Equal(t, MatchNone, resolved.Match)
		assert.Equal(t, 300, resolved.AbsoluteSeconds)
		assert.Equal(t, "5", resolved.DisplayMinutes)
		assert.Equal(t, "00", resolved.DisplaySeconds)
	}
}

func TestResolveCitation_NilRegistry(t *testing.T) {
	tok := citationToken(t, "[Anything 0:10]")

	resolved := ResolveCitation(tok, nil)

	assert.Equal(t, "", resolved.SourceID)
	assert.Equal(t, MatchNone, resolved.Match)
}

func TestResolveCitation_AbsoluteSeconds(t *testing.T) {
	tests := []struct {
		citation string
		want     int
	}{
		{"[X 0:00]", 0},
		{"[X 0:30]", 30},
		{"[X 2:05]", 125},
		{"[X 12:34]", 754},
		{"[X 99:59]", 5999},
	}

	registry := Registry{{ID: "s1", Title: "X"}}

	for _, tt := range tests {
		t.Run(tt.citation, func(t *testing.T) {
			tok := citationToken(t, tt.citation)
			resolved := ResolveCitation(tok, registry)
			assert.Equal(t, tt.want, resolved.AbsoluteSeconds)
		})
	}
}

func TestResolveCitation_DisplayDigitsPreserved(t *testing.T) {
	registry := Registry{{ID: "s1", Title: "My Video"}}
	tok := citationToken(t, "[My Video 2:05]")

	resolved := ResolveCitation(tok, registry)

	// Digits stay exactly as written, including the leading zero.
	assert.Equal(t, "2", resolved.DisplayMinutes)
	assert.Equal(t, "05", resolved.DisplaySeconds)
}

func TestResolveCitation_CaseSensitive(t *testing.T) {
	// Containment is case-sensitive, so a case mismatch falls through to
	// the first-record fallback.
	registry := Registry{{ID: "s1", Title: "my video"}}
	tok := citationToken(t, "[My Video 1:00]")

	resolved := ResolveCitation(tok, registry)

	assert.Equal(t, "s1", resolved.SourceID)
	assert.Equal(t, MatchFallbackFirst, resolved.Match)
}

func TestResolveCitation_OrderDependence(t *testing.T) {
	// Registry order decides the winner; reordering the same records can
	// change the resolved source.
	tok := citationToken(t, "[Sprint Demo 1:00]")

	forward := ResolveCitation(tok, Registry{
		{ID: "a", Title: "Sprint Demo March"},
		{ID: "b", Title: "Sprint Demo April"},
	})
	reversed := ResolveCitation(tok, Registry{
		{ID: "b", Title: "Sprint Demo April"},
		{ID: "a", Title: "Sprint Demo March"},
	})

	assert.Equal(t, "a", forward.SourceID)
	assert.Equal(t, "b", reversed.SourceID)
}
