// Package render turns annotated transcript messages into presentable
// output: styled terminal text for interactive use and a structured
// document form for machine consumption.
//
// The package owns presentation only. Annotation semantics live in
// pkg/annotate; this layer consumes its node streams and never inspects
// raw markup.
package render

import (
	"fmt"

	"golang.org/x/term"

	"github.com/sightlinehq/sightline-cli/pkg/annotate"
)

// DefaultLinkScheme is the URL scheme of citation deep links. The desktop
// app registers itself as the scheme handler and owns actual playback.
const DefaultLinkScheme = "sightline"

// Options control rendering output.
type Options struct {
	// Color enables ANSI styling. Callers normally set this from IsTTY.
	Color bool

	// Width wraps paragraph and list text at the given visible width.
	// Zero disables wrapping.
	Width int

	// LinkScheme overrides the deep link scheme. Empty means
	// DefaultLinkScheme.
	LinkScheme string

	// OnActivate is the seek capability injected into annotation. Nil
	// leaves every citation inert.
	OnActivate annotate.ActivateFunc
}

// DefaultOptions returns plain unstyled output with no wrapping.
func DefaultOptions() Options {
	return Options{LinkScheme: DefaultLinkScheme}
}

func (o Options) scheme() string {
	if o.LinkScheme == "" {
		return DefaultLinkScheme
	}
	return o.LinkScheme
}

// DeepLink builds the playback link for a source at an absolute offset.
func DeepLink(scheme, sourceID string, absoluteSeconds int) string {
	return fmt.Sprintf("%s://play/%s?t=%d", scheme, sourceID, absoluteSeconds)
}

// Link is one collected seek request in deep link form.
type Link struct {
	SourceID string `json:"source_id"`
	Seconds  int    `json:"seconds"`
	URL      string `json:"url"`
}

// Collector turns activation calls into deep links. Injecting its Func as
// the engine's ActivateFunc records, in render order, the link each
// citation would follow when clicked.
type Collector struct {
	scheme string
	links  []Link
}

// NewCollector creates a collector building links with the given scheme.
// Empty means DefaultLinkScheme.
func NewCollector(scheme string) *Collector {
	if scheme == "" {
		scheme = DefaultLinkScheme
	}
	return &Collector{scheme: scheme}
}

// Func returns the ActivateFunc to inject into Annotate.
func (c *Collector) Func() annotate.ActivateFunc {
	return func(sourceID string, absoluteSeconds int) {
		c.links = append(c.links, Link{
			SourceID: sourceID,
			Seconds:  absoluteSeconds,
			URL:      DeepLink(c.scheme, sourceID, absoluteSeconds),
		})
	}
}

// Links returns the collected links in activation order.
func (c *Collector) Links() []Link {
	return c.links
}

// IsTTY reports whether the file descriptor is attached to a terminal.
func IsTTY(fd int) bool {
	return term.IsTerminal(fd)
}

// DetectWidth returns the terminal width for fd, or fallback when fd is
// not a terminal or its size cannot be read.
func DetectWidth(fd int, fallback int) int {
	if !term.IsTerminal(fd) {
		return fallback
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return fallback
	}
	return width
}
