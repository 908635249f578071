package popup

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cablewatch/cablemap/pkg/core"
)

var simulated = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testFault() core.FaultEvent {
	return core.FaultEvent{
		ID:          "sjc2s1-1709294400000",
		Segment:     core.SegmentRef{CableSystem: "sjc2", SegmentID: "s1"},
		DistanceKm:  12.34567,
		Type:        core.FullCut,
		SimulatedAt: simulated,
		Latitude:    10.123456,
		Longitude:   120.654321,
		Depth:       core.DepthMeters(850),
	}
}

func lineValue(t *testing.T, c Content, label string) string {
	t.Helper()
	for _, l := range c.Lines {
		if l.Label == label {
			return l.Value
		}
	}
	t.Fatalf("no line %q in %+v", label, c.Lines)
	return ""
}

func TestFormatAt(t *testing.T) {
	c := FormatAt(testFault(), simulated.Add(3*time.Minute))

	assert.Equal(t, "Full Cut", c.Title)
	assert.Equal(t, "sjc2/s1", lineValue(t, c, "Segment"))
	assert.Equal(t, "Full Cut", lineValue(t, c, "Type"))
	assert.Equal(t, "12.346 km", lineValue(t, c, "Distance"))
	assert.Equal(t, "850 m", lineValue(t, c, "Depth"))
	assert.Equal(t, "10.12346, 120.65432", lineValue(t, c, "Coordinates"))
	assert.Equal(t, "Fri, 01 Mar 2024 12:00:00 UTC", lineValue(t, c, "Simulated"))
	assert.Equal(t, "3 minutes ago", lineValue(t, c, "Age"))
}

func TestFormatAt_LineOrder(t *testing.T) {
	c := FormatAt(testFault(), simulated)

	labels := make([]string, 0, len(c.Lines))
	for _, l := range c.Lines {
		labels = append(labels, l.Label)
	}
	assert.Equal(t, []string{"Segment", "Type", "Distance", "Depth", "Coordinates", "Simulated", "Age"}, labels)
}

func TestFormatAt_UnknownDepthAndTime(t *testing.T) {
	f := testFault()
	f.Depth = core.UnknownDepth
	f.SimulatedAt = time.Time{}
	f.Segment = core.SegmentRef{}

	c := FormatAt(f, simulated)

	assert.Equal(t, "Unknown", lineValue(t, c, "Depth"))
	assert.Equal(t, "Unknown", lineValue(t, c, "Simulated"))
	for _, l := range c.Lines {
		assert.NotEqual(t, "Age", l.Label)
		assert.NotEqual(t, "Segment", l.Label)
	}
}

func TestFormatAt_AgeChangesContent(t *testing.T) {
	f := testFault()

	a := FormatAt(f, simulated.Add(time.Minute))
	b := FormatAt(f, simulated.Add(time.Minute))
	c := FormatAt(f, simulated.Add(2*time.Hour))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestContent_HTMLEscapes(t *testing.T) {
	c := Content{Title: "<b>x</b>", Lines: []Line{{Label: "Note", Value: "a & b"}}}

	out := c.HTML()

	assert.True(t, strings.HasPrefix(out, `<div class="fault-popup">`))
	assert.Contains(t, out, "&lt;b&gt;x&lt;/b&gt;")
	assert.Contains(t, out, "<b>Note:</b> a &amp; b")
}

func TestContent_IsZero(t *testing.T) {
	assert.True(t, Content{}.IsZero())
	require.False(t, FormatAt(testFault(), simulated).IsZero())
}
