package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sightlinehq/sightline-cli/pkg/annotate"
)

func TestParseFilter_RoleTerm(t *testing.T) {
	f, err := ParseFilter("role:assistant")
	require.NoError(t, err)
	require.Len(t, f.Terms, 1)

	assert.Equal(t, FieldRole, f.Terms[0].Field)
	assert.Equal(t, "assistant", f.Terms[0].Value)
	assert.False(t, f.Terms[0].Negated)
}

func TestParseFilter_RoleNormalizedToLower(t *testing.T) {
	f, err := ParseFilter("role:Assistant")
	require.NoError(t, err)
	assert.Equal(t, "assistant", f.Terms[0].Value)
}

func TestParseFilter_RoleNeedsValue(t *testing.T) {
	_, err := ParseFilter("role:")
	require.Error(t, err)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Message, "role")
}

func TestParseFilter_HasTerm(t *testing.T) {
	for _, v := range []string{"citation", "emphasis", "heading", "list"} {
		t.Run(v, func(t *testing.T) {
			f, err := ParseFilter("has:" + v)
			require.NoError(t, err)
			require.Len(t, f.Terms, 1)
			assert.Equal(t, FieldHas, f.Terms[0].Field)
			assert.Equal(t, v, f.Terms[0].Value)
		})
	}
}

func TestParseFilter_HasRejectsUnknownKind(t *testing.T) {
	_, err := ParseFilter("has:table")
	require.Error(t, err)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Message, "table")
	assert.Equal(t, "has:table", perr.Context)
}

func TestParseFilter_BareWordsAreTextTerms(t *testing.T) {
	f, err := ParseFilter("sprint demo")
	require.NoError(t, err)
	require.Len(t, f.Terms, 2)

	assert.Equal(t, FieldText, f.Terms[0].Field)
	assert.Equal(t, "sprint", f.Terms[0].Value)
	assert.Equal(t, "demo", f.Terms[1].Value)
}

func TestParseFilter_QuotedPhrase(t *testing.T) {
	f, err := ParseFilter(`text:"sprint demo"`)
	require.NoError(t, err)
	require.Len(t, f.Terms, 1)

	assert.Equal(t, FieldText, f.Terms[0].Field)
	assert.Equal(t, "sprint demo", f.Terms[0].Value)
	assert.True(t, f.Terms[0].Quoted)
}

func TestParseFilter_BareQuotedPhrase(t *testing.T) {
	f, err := ParseFilter(`"exact phrase here"`)
	require.NoError(t, err)
	require.Len(t, f.Terms, 1)

	assert.Equal(t, FieldText, f.Terms[0].Field)
	assert.Equal(t, "exact phrase here", f.Terms[0].Value)
	assert.True(t, f.Terms[0].Quoted)
}

func TestParseFilter_EscapedQuoteInsidePhrase(t *testing.T) {
	f, err := ParseFilter(`text:"say \"hi\""`)
	require.NoError(t, err)
	require.Len(t, f.Terms, 1)
	assert.Equal(t, `say "hi"`, f.Terms[0].Value)
}

func TestParseFilter_Negation(t *testing.T) {
	f, err := ParseFilter("-draft -role:user")
	require.NoError(t, err)
	require.Len(t, f.Terms, 2)

	assert.Equal(t, FieldText, f.Terms[0].Field)
	assert.Equal(t, "draft", f.Terms[0].Value)
	assert.True(t, f.Terms[0].Negated)

	assert.Equal(t, FieldRole, f.Terms[1].Field)
	assert.Equal(t, "user", f.Terms[1].Value)
	assert.True(t, f.Terms[1].Negated)
}

func TestParseFilter_UnknownField(t *testing.T) {
	_, err := ParseFilter("speaker:alice")
	require.Error(t, err)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Message, "speaker")
	assert.Equal(t, 0, perr.Position)
}

func TestParseFilter_UnclosedQuote(t *testing.T) {
	_, err := ParseFilter(`text:"never closed`)
	require.Error(t, err)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Message, "unclosed")
}

func TestParseFilter_Empty(t *testing.T) {
	for _, input := range []string{"", "   ", "\t\n"} {
		_, err := ParseFilter(input)
		require.Error(t, err, "input %q", input)
	}
}

func TestParseFilter_MixedExpression(t *testing.T) {
	f, err := ParseFilter(`role:assistant has:citation text:"sprint demo" -draft`)
	require.NoError(t, err)
	require.Len(t, f.Terms, 4)

	assert.Equal(t, FieldRole, f.Terms[0].Field)
	assert.Equal(t, FieldHas, f.Terms[1].Field)
	assert.Equal(t, FieldText, f.Terms[2].Field)
	assert.Equal(t, "sprint demo", f.Terms[2].Value)
	assert.True(t, f.Terms[3].Negated)
}

func TestMatches_Role(t *testing.T) {
	f, err := ParseFilter("role:assistant")
	require.NoError(t, err)

	assert.True(t, f.Matches(annotate.RawMessage{Role: "assistant"}))
	assert.True(t, f.Matches(annotate.RawMessage{Role: "Assistant"}))
	assert.False(t, f.Matches(annotate.RawMessage{Role: "user"}))
}

func TestMatches_HasCitation(t *testing.T) {
	f, err := ParseFilter("has:citation")
	require.NoError(t, err)

	assert.True(t, f.Matches(annotate.RawMessage{Content: "see [Demo 1:30] here"}))
	assert.True(t, f.Matches(annotate.RawMessage{Content: "first\n- item with [Clip 0:05]"}))
	assert.False(t, f.Matches(annotate.RawMessage{Content: "no citations at all"}))
	assert.False(t, f.Matches(annotate.RawMessage{Content: "[malformed 1:5]"}))
}

func TestMatches_HasEmphasis(t *testing.T) {
	f, err := ParseFilter("has:emphasis")
	require.NoError(t, err)

	assert.True(t, f.Matches(annotate.RawMessage{Content: "a **bold** claim"}))
	assert.False(t, f.Matches(annotate.RawMessage{Content: "an *italic* claim"}))
}

func TestMatches_HasHeadingAndList(t *testing.T) {
	heading, err := ParseFilter("has:heading")
	require.NoError(t, err)
	list, err := ParseFilter("has:list")
	require.NoError(t, err)

	msg := annotate.RawMessage{Content: "## Recap\n1. first point"}
	assert.True(t, heading.Matches(msg))
	assert.True(t, list.Matches(msg))

	plain := annotate.RawMessage{Content: "just a paragraph"}
	assert.False(t, heading.Matches(plain))
	assert.False(t, list.Matches(plain))
}

func TestMatches_TextCaseInsensitive(t *testing.T) {
	f, err := ParseFilter("text:Sprint")
	require.NoError(t, err)

	assert.True(t, f.Matches(annotate.RawMessage{Content: "the sprint review"}))
	assert.True(t, f.Matches(annotate.RawMessage{Content: "SPRINT planning"}))
	assert.False(t, f.Matches(annotate.RawMessage{Content: "the standup"}))
}

func TestMatches_NegatedTerm(t *testing.T) {
	f, err := ParseFilter("-has:citation")
	require.NoError(t, err)

	assert.True(t, f.Matches(annotate.RawMessage{Content: "plain text"}))
	assert.False(t, f.Matches(annotate.RawMessage{Content: "see [Demo 1:30]"}))
}

func TestMatches_AllTermsMustHold(t *testing.T) {
	f, err := ParseFilter("role:assistant has:citation")
	require.NoError(t, err)

	assert.True(t, f.Matches(annotate.RawMessage{Role: "assistant", Content: "[Demo 0:10]"}))
	assert.False(t, f.Matches(annotate.RawMessage{Role: "user", Content: "[Demo 0:10]"}))
	assert.False(t, f.Matches(annotate.RawMessage{Role: "assistant", Content: "no citation"}))
}

func TestApply_PreservesOrder(t *testing.T) {
	f, err := ParseFilter("role:assistant")
	require.NoError(t, err)

	messages := []annotate.RawMessage{
		{ID: "m1", Role: "user", Content: "q1"},
		{ID: "m2", Role: "assistant", Content: "a1"},
		{ID: "m3", Role: "user", Content: "q2"},
		{ID: "m4", Role: "assistant", Content: "a2"},
	}

	got := f.Apply(messages)
	require.Len(t, got, 2)
	assert.Equal(t, "m2", got[0].ID)
	assert.Equal(t, "m4", got[1].ID)
}
