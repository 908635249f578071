package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cablewatch/cablemap/internal/popup"
	"github.com/cablewatch/cablemap/internal/reconcile"
	"github.com/cablewatch/cablemap/pkg/core"
)

func TestSurface_Lifecycle(t *testing.T) {
	s := New()

	h, err := s.AddMarker(reconcile.Marker{ID: "a"}, popup.Content{Title: "Full Cut"})
	require.NoError(t, err)
	require.NoError(t, s.OpenPopup(h))
	require.NoError(t, s.SetPopupContent(h, popup.Content{Title: "Fiber Break"}))

	m := s.Markers()
	require.Contains(t, m, "a")
	assert.True(t, m["a"].PopupOpen)
	assert.Equal(t, "Fiber Break", m["a"].Content.Title)

	require.NoError(t, s.ClosePopup(h))
	assert.False(t, s.Markers()["a"].PopupOpen)

	require.NoError(t, s.RemoveMarker(h))
	assert.Empty(t, s.Markers())
	assert.Equal(t, 1, s.CountOps("add"))
	assert.Equal(t, 1, s.CountOps("remove"))
	assert.ErrorIs(t, s.RemoveMarker(h), ErrUnknownHandle)
}

func TestSurface_ApplyRoundTrip(t *testing.T) {
	s := New()
	desired := []core.FaultEvent{
		{ID: "x-1", Type: core.FullCut, Latitude: 1, Longitude: 104},
		{ID: "x-2", Type: core.ShuntFault, Latitude: 2, Longitude: 105},
	}

	st, effects := reconcile.Reconcile(desired, nil, reconcile.Options{})
	st, err := reconcile.Apply(s, effects, st)
	require.NoError(t, err)

	assert.Len(t, s.Markers(), 2)
	assert.ElementsMatch(t, []string{"x-1", "x-2"}, st.IDs())
}

func TestSurface_FailAdd(t *testing.T) {
	s := New()
	s.FailAdd = map[string]error{"bad": errors.New("boom")}

	_, err := s.AddMarker(reconcile.Marker{ID: "bad"}, popup.Content{})
	assert.Error(t, err)
	assert.Empty(t, s.Calls())
}

func TestSurface_FlyToAndReset(t *testing.T) {
	s := New()
	require.NoError(t, s.FlyTo(1, 2, 8))

	require.Len(t, s.Flights(), 1)
	assert.Equal(t, FlyTo{Latitude: 1, Longitude: 2, Zoom: 8}, s.Flights()[0])

	s.Reset()
	assert.Empty(t, s.Flights())
	assert.Empty(t, s.Calls())
}
