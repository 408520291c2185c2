package annotate

// ActivateFunc is the injected seek capability carried by citation tokens.
// The host wires it to its player subsystem: given a valid source id and a
// non-negative second offset, playback of that source moves to the offset.
type ActivateFunc func(sourceID string, absoluteSeconds int)

// AnnotatedToken is one inline token with its resolution and activation
// capability attached. Resolved is non-nil for citation tokens only.
type AnnotatedToken struct {
	InlineToken
	Resolved *ResolvedCitation `json:"resolved,omitempty"`

	activate ActivateFunc
}

// Activatable reports whether activating the token would trigger a seek.
// Unresolved citations and non-citation tokens are inert.
func (t AnnotatedToken) Activatable() bool {
	return t.Resolved != nil && t.Resolved.SourceID != "" && t.activate != nil
}

// Activate invokes the seek capability with the token's resolved source
// and offset. Inert tokens make this a no-op, never a fault.
func (t AnnotatedToken) Activate() {
	if !t.Activatable() {
		return
	}
	t.activate(t.Resolved.SourceID, t.Resolved.AbsoluteSeconds)
}

// AnnotatedBlock is one block node with its inline token stream. Tokens is
// populated for paragraph and list item nodes; headings and breaks carry
// none.
type AnnotatedBlock struct {
	BlockNode
	Tokens []AnnotatedToken `json:"tokens,omitempty"`
}

// AnnotatedMessage is the fully annotated form of one chat turn, ready for
// the presentation layer.
type AnnotatedMessage struct {
	ID     string           `json:"id"`
	Role   string           `json:"role"`
	Blocks []AnnotatedBlock `json:"blocks"`
}

// Citations returns the message's resolved citations in render order.
func (m AnnotatedMessage) Citations() []ResolvedCitation {
	var cites []ResolvedCitation
	for _, block := range m.Blocks {
		for _, tok := range block.Tokens {
			if tok.Resolved != nil {
				cites = append(cites, *tok.Resolved)
			}
		}
	}
	return cites
}

// Annotate runs the full pipeline over one message: block segmentation,
// inline extraction over each paragraph and list item, and citation
// resolution against the registry snapshot. onActivate may be nil, in
// which case every citation renders inert.
//
// Annotate is a pure function of its arguments. It never mutates the
// registry and allocates fresh nodes per call, so independent messages can
// be annotated concurrently.
func Annotate(msg RawMessage, registry Registry, onActivate ActivateFunc) AnnotatedMessage {
	nodes := Segment(msg.Content)

	blocks := make([]AnnotatedBlock, 0, len(nodes))
	for _, node := range nodes {
		block := AnnotatedBlock{BlockNode: node}
		if node.Kind == KindParagraph || node.Kind == KindListItem {
			block.Tokens = annotateLine(node.Text, registry, onActivate)
		}
		blocks = append(blocks, block)
	}

	return AnnotatedMessage{
		ID:     msg.ID,
		Role:   msg.Role,
		Blocks: blocks,
	}
}

// annotateLine extracts one line's tokens and resolves its citations.
func annotateLine(line string, registry Registry, onActivate ActivateFunc) []AnnotatedToken {
	tokens := ExtractInline(line)

	annotated := make([]AnnotatedToken, 0, len(tokens))
	for _, tok := range tokens {
		at := AnnotatedToken{InlineToken: tok}
		if tok.Kind == TokenCitation {
			resolved := ResolveCitation(tok, registry)
			at.Resolved = &resolved
			at.activate = onActivate
		}
		annotated = append(annotated, at)
	}
	return annotated
}
