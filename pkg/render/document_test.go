package render

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sightlinehq/sightline-cli/pkg/annotate"
)

func TestBuildDocument_MessagesAndSummaries(t *testing.T) {
	msgs := []annotate.RawMessage{
		{ID: "m1", Role: "user", Content: "where is the pricing part?"},
		{ID: "m2", Role: "assistant", Content: "# Pricing\nsee [Quarterly 12:30] for detail"},
	}
	registry := annotate.Registry{{ID: "vd-q3", Title: "Quarterly Review"}}

	doc := BuildDocument(msgs, registry, DefaultOptions())
	require.NotNil(t, doc)
	require.Len(t, doc.Messages, 2)

	assert.Equal(t, registry, doc.Sources)
	assert.Empty(t, doc.Messages[0].Citations)

	cites := doc.Messages[1].Citations
	require.Len(t, cites, 1)
	assert.Equal(t, CitationSummary{
		Title:           "Quarterly",
		SourceID:        "vd-q3",
		AbsoluteSeconds: 750,
		Match:           annotate.MatchTitleContains,
		Link:            "sightline://play/vd-q3?t=750",
	}, cites[0])
}

func TestBuildDocument_KeepsAnnotatedTree(t *testing.T) {
	msgs := []annotate.RawMessage{{ID: "m1", Role: "assistant", Content: "## Recap\n- **done**"}}

	doc := BuildDocument(msgs, nil, DefaultOptions())
	require.Len(t, doc.Messages, 1)

	blocks := doc.Messages[0].Blocks
	require.Len(t, blocks, 2)
	assert.Equal(t, annotate.KindHeading, blocks[0].Kind)
	assert.Equal(t, 2, blocks[0].Level)
	assert.Equal(t, annotate.KindListItem, blocks[1].Kind)
	require.Len(t, blocks[1].Tokens, 1)
	assert.Equal(t, annotate.TokenEmphasis, blocks[1].Tokens[0].Kind)
}

func TestBuildDocument_InertCitationHasNoLink(t *testing.T) {
	msgs := []annotate.RawMessage{{ID: "m1", Content: "see [Missing 0:42]"}}

	doc := BuildDocument(msgs, annotate.Registry{}, DefaultOptions())
	cites := doc.Messages[0].Citations
	require.Len(t, cites, 1)

	assert.Equal(t, annotate.MatchNone, cites[0].Match)
	assert.Empty(t, cites[0].SourceID)
	assert.Empty(t, cites[0].Link)
	assert.Equal(t, 42, cites[0].AbsoluteSeconds)
}

func TestBuildDocument_CustomLinkScheme(t *testing.T) {
	msgs := []annotate.RawMessage{{Content: "[Demo 1:00]"}}
	registry := annotate.Registry{{ID: "s1", Title: "Demo Day"}}
	opts := DefaultOptions()
	opts.LinkScheme = "preview"

	doc := BuildDocument(msgs, registry, opts)
	require.Len(t, doc.Messages[0].Citations, 1)
	assert.Equal(t, "preview://play/s1?t=60", doc.Messages[0].Citations[0].Link)
}

func TestBuildDocument_CollectorSeesDocumentOrder(t *testing.T) {
	collector := NewCollector("")
	opts := DefaultOptions()
	opts.OnActivate = collector.Func()

	msgs := []annotate.RawMessage{
		{ID: "m1", Content: "[A 0:10]"},
		{ID: "m2", Content: "[B 0:20]"},
	}
	registry := annotate.Registry{
		{ID: "s-a", Title: "A Side"},
		{ID: "s-b", Title: "B Side"},
	}

	BuildDocument(msgs, registry, opts)

	links := collector.Links()
	require.Len(t, links, 2)
	assert.Equal(t, "s-a", links[0].SourceID)
	assert.Equal(t, "s-b", links[1].SourceID)
}

func TestBuildDocument_Stats(t *testing.T) {
	msgs := []annotate.RawMessage{
		{Role: "user", Content: "plain"},
		{Role: "assistant", Content: "[Alpha 0:10] and [Zzz 0:20]"},
	}
	registry := annotate.Registry{{ID: "s1", Title: "Alpha Review"}}

	doc := BuildDocument(msgs, registry, DefaultOptions())

	assert.Equal(t, 2, doc.Stats.Messages)
	assert.Equal(t, 2, doc.Stats.Blocks)
	assert.Equal(t, 2, doc.Stats.Citations)
	assert.Equal(t, 1, doc.Stats.Resolved)
	assert.Equal(t, 1, doc.Stats.Fallback)
	assert.WithinDuration(t, time.Now(), doc.GeneratedAt, time.Minute)
}

func TestBuildDocument_MarshalsCleanly(t *testing.T) {
	msgs := []annotate.RawMessage{{ID: "m1", Role: "assistant", Content: "see [Demo 1:30]"}}
	registry := annotate.Registry{{ID: "vd-1", Title: "Demo Day"}}

	doc := BuildDocument(msgs, registry, DefaultOptions())
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, `"source_id":"vd-1"`)
	assert.Contains(t, out, `"link":"sightline://play/vd-1?t=90"`)
	assert.Contains(t, out, `"match":"title_contains"`)
	assert.NotContains(t, out, "activate")
}

func TestBuildDocument_EmptyInput(t *testing.T) {
	doc := BuildDocument(nil, nil, DefaultOptions())
	require.NotNil(t, doc)

	assert.Empty(t, doc.Messages)
	assert.Zero(t, doc.Stats.Messages)
}
