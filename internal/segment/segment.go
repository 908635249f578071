// Package segment holds the per-segment configuration that parameterizes one engine:
// where its RPL lives, which distances are valid, how its RPL is filtered and which
// fault ids belong to it.
package segment

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cablewatch/cablemap/internal/fault"
	"github.com/cablewatch/cablemap/internal/route"
	"github.com/cablewatch/cablemap/pkg/core"
)

// ErrUnknownSegment is returned for a segment id the registry does not hold.
var ErrUnknownSegment = errors.New("unknown segment")

// Config describes one cable segment.
type Config struct {
	CableSystem string `json:"cableSystem" mapstructure:"cableSystem"`
	SegmentID   string `json:"segmentId" mapstructure:"segmentId"`
	DisplayName string `json:"displayName" mapstructure:"displayName"`

	// RoutePath is the RPL endpoint, e.g. "/sjc2-rpl-s1". Derived when empty.
	RoutePath string `json:"routePath" mapstructure:"routePath"`

	// IDPrefix is the fault id prefix. Derived as CableSystem+SegmentID when empty.
	IDPrefix string `json:"idPrefix" mapstructure:"idPrefix"`

	// MinKm/MaxKm override the bounds derived from the RPL when HasBounds is set.
	HasBounds    bool    `json:"hasBounds" mapstructure:"hasBounds"`
	MinKm        float64 `json:"minKm" mapstructure:"minKm"`
	MaxKm        float64 `json:"maxKm" mapstructure:"maxKm"`
	MinExclusive bool    `json:"minExclusive" mapstructure:"minExclusive"`
	MaxExclusive bool    `json:"maxExclusive" mapstructure:"maxExclusive"`

	RejectZeroSentinel bool `json:"rejectZeroSentinel" mapstructure:"rejectZeroSentinel"`

	// LandmarkPrefixes selects which RPL labels are drawn as landmarks (BU, BMH).
	LandmarkPrefixes []string `json:"landmarkPrefixes" mapstructure:"landmarkPrefixes"`
}

// Key returns the registry key, "<cable>/<segment>".
func (c Config) Key() string {
	return c.Ref().String()
}

// Ref returns the segment reference.
func (c Config) Ref() core.SegmentRef {
	return core.SegmentRef{CableSystem: c.CableSystem, SegmentID: c.SegmentID}
}

// Prefix returns the fault id prefix.
func (c Config) Prefix() string {
	if c.IDPrefix != "" {
		return c.IDPrefix
	}
	return c.CableSystem + c.SegmentID
}

// Path returns the RPL endpoint path.
func (c Config) Path() string {
	if c.RoutePath != "" {
		return "/" + strings.TrimLeft(c.RoutePath, "/")
	}
	return fmt.Sprintf("/%s-rpl-%s", c.CableSystem, c.SegmentID)
}

// ConfiguredBounds returns the explicit bounds, or nil when they derive from the RPL.
func (c Config) ConfiguredBounds() *core.Bounds {
	if !c.HasBounds {
		return nil
	}
	return &core.Bounds{
		MinKm:        c.MinKm,
		MaxKm:        c.MaxKm,
		MinExclusive: c.MinExclusive,
		MaxExclusive: c.MaxExclusive,
	}
}

// RouteOptions returns the route build options for this segment.
func (c Config) RouteOptions() route.Options {
	return route.Options{
		Segment:            c.Ref(),
		RejectZeroSentinel: c.RejectZeroSentinel,
		Bounds:             c.ConfiguredBounds(),
	}
}

// Owns reports whether a fault id belongs to this segment.
func (c Config) Owns(id string) bool {
	return fault.HasPrefix(id, c.Prefix())
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.CableSystem == "" || c.SegmentID == "" {
		return fmt.Errorf("segment config needs cableSystem and segmentId, got %q/%q", c.CableSystem, c.SegmentID)
	}
	if c.HasBounds && c.MinKm > c.MaxKm {
		return fmt.Errorf("segment %s: minKm %g > maxKm %g", c.Key(), c.MinKm, c.MaxKm)
	}
	return nil
}

// Registry is an immutable set of segment configurations.
type Registry struct {
	byKey    map[string]Config
	byPrefix map[string]string
	keys     []string
}

// NewRegistry validates configs and indexes them. Duplicate keys or id prefixes are errors.
func NewRegistry(configs []Config) (*Registry, error) {
	r := &Registry{
		byKey:    make(map[string]Config, len(configs)),
		byPrefix: make(map[string]string, len(configs)),
	}
	for _, c := range configs {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byKey[c.Key()]; dup {
			return nil, fmt.Errorf("duplicate segment %s", c.Key())
		}
		if other, dup := r.byPrefix[c.Prefix()]; dup {
			return nil, fmt.Errorf("segments %s and %s share id prefix %q", other, c.Key(), c.Prefix())
		}
		r.byKey[c.Key()] = c
		r.byPrefix[c.Prefix()] = c.Key()
		r.keys = append(r.keys, c.Key())
	}
	sort.Strings(r.keys)
	return r, nil
}

// Get returns the config for key.
func (r *Registry) Get(key string) (Config, error) {
	c, ok := r.byKey[key]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrUnknownSegment, key)
	}
	return c, nil
}

// Keys returns all segment keys in sorted order.
func (r *Registry) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Owner returns the segment that owns a fault id.
func (r *Registry) Owner(id string) (Config, bool) {
	key, ok := r.byPrefix[fault.PrefixOf(id)]
	if !ok {
		return Config{}, false
	}
	return r.byKey[key], true
}

// Partition splits faults by owning segment key. Faults no segment owns are returned separately.
func (r *Registry) Partition(faults []core.CutRecord) (owned map[string][]core.CutRecord, orphans []core.CutRecord) {
	owned = make(map[string][]core.CutRecord, len(r.keys))
	for _, f := range faults {
		c, ok := r.Owner(f.CutID)
		if !ok {
			orphans = append(orphans, f)
			continue
		}
		owned[c.Key()] = append(owned[c.Key()], f)
	}
	return owned, orphans
}
