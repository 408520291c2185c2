// Package annotate implements the content annotation engine for chat
// transcript rendering.
//
// The engine converts assistant-generated text written in a restricted
// markdown dialect into typed render nodes. It runs in three stages:
// block segmentation (one node per source line), inline annotation
// extraction (emphasis spans and time-coded citations interleaved with
// literal runs), and citation resolution against a source registry.
//
// Every operation is a pure function over its inputs. The engine holds no
// state and performs no I/O, so callers may annotate independent messages
// concurrently without coordination.
package annotate

// BlockKind identifies the structural role of a single source line.
type BlockKind string

// Block kinds produced by Segment.
const (
	KindHeading   BlockKind = "heading"
	KindListItem  BlockKind = "list_item"
	KindBreak     BlockKind = "break"
	KindParagraph BlockKind = "paragraph"
)

// BlockNode is one line-granularity structural unit of a message.
// Nodes appear in source order, exactly one per physical line.
type BlockNode struct {
	Kind  BlockKind `json:"kind"`
	Level int       `json:"level,omitempty"` // heading level 1-3, zero otherwise
	Text  string    `json:"text,omitempty"`
}

// TokenKind identifies the annotation kind of an inline token.
type TokenKind string

// Token kinds produced by ExtractInline.
const (
	TokenLiteral  TokenKind = "literal"
	TokenEmphasis TokenKind = "emphasis"
	TokenCitation TokenKind = "citation"
)

// InlineToken is one fragment of a line's text after annotation extraction.
// Start is the byte offset of the fragment within its owning line and Raw is
// the exact source substring the token was produced from, so concatenating
// Raw across a line's tokens reconstructs the line.
//
// RawTitle, Minutes and Seconds are populated for citation tokens only.
// Minutes and Seconds keep the digits exactly as written so the original
// timestamp label survives into presentation.
type InlineToken struct {
	Kind     TokenKind `json:"kind"`
	Start    int       `json:"start"`
	Raw      string    `json:"raw"`
	Text     string    `json:"text,omitempty"`      // literal run or emphasis content
	RawTitle string    `json:"raw_title,omitempty"` // citation display title as written
	Minutes  string    `json:"minutes,omitempty"`   // citation minute digits, 1-2 chars
	Seconds  string    `json:"seconds,omitempty"`   // citation second digits, always 2 chars
}

// Chat roles carried by RawMessage. Role is an open string so transcripts
// from other tools can carry their own labels; these two are the ones the
// application itself writes.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// RawMessage is the complete text of one chat turn.
type RawMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}
