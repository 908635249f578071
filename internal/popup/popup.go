// Package popup formats fault details for marker popups and drives the
// hover open/close behaviour of a single popup.
package popup

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/cablewatch/cablemap/pkg/core"
)

// Line is one labelled row of popup detail.
type Line struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Content is the rendered detail for one fault.
type Content struct {
	Title string `json:"title"`
	Lines []Line `json:"lines"`
}

// Format renders f relative to the current time.
func Format(f core.FaultEvent) Content {
	return FormatAt(f, time.Now())
}

// FormatAt renders f with the age line computed against now.
func FormatAt(f core.FaultEvent, now time.Time) Content {
	c := Content{
		Title: f.Type.String(),
		Lines: []Line{
			{Label: "Type", Value: f.Type.String()},
			{Label: "Distance", Value: fmt.Sprintf("%.3f km", f.DistanceKm)},
			{Label: "Depth", Value: f.Depth.String()},
			{Label: "Coordinates", Value: fmt.Sprintf("%.5f, %.5f", f.Latitude, f.Longitude)},
		},
	}
	if c.Title == "" {
		c.Title = "Fault"
	}
	if f.Segment != (core.SegmentRef{}) {
		c.Lines = append([]Line{{Label: "Segment", Value: f.Segment.String()}}, c.Lines...)
	}
	if f.SimulatedAt.IsZero() {
		c.Lines = append(c.Lines, Line{Label: "Simulated", Value: "Unknown"})
		return c
	}
	c.Lines = append(c.Lines,
		Line{Label: "Simulated", Value: f.SimulatedAt.UTC().Format(time.RFC1123)},
		Line{Label: "Age", Value: humanize.RelTime(f.SimulatedAt, now, "ago", "from now")},
	)
	return c
}

// Equal reports whether two contents render identically.
func (c Content) Equal(o Content) bool {
	if c.Title != o.Title || len(c.Lines) != len(o.Lines) {
		return false
	}
	for i := range c.Lines {
		if c.Lines[i] != o.Lines[i] {
			return false
		}
	}
	return true
}

// IsZero reports whether nothing was rendered.
func (c Content) IsZero() bool {
	return c.Title == "" && len(c.Lines) == 0
}

// HTML renders the content as an escaped fragment for the map popup.
func (c Content) HTML() string {
	var b strings.Builder
	b.WriteString(`<div class="fault-popup"><strong>`)
	b.WriteString(html.EscapeString(c.Title))
	b.WriteString(`</strong>`)
	for _, l := range c.Lines {
		b.WriteString(`<br/><b>`)
		b.WriteString(html.EscapeString(l.Label))
		b.WriteString(`:</b> `)
		b.WriteString(html.EscapeString(l.Value))
	}
	b.WriteString(`</div>`)
	return b.String()
}
