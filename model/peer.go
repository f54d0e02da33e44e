package model

// PeerRecord is one peer location as delivered by the feed and as consumed
// by the globe renderer. Lat/Lon are degree-scale values; the source data
// does not guarantee they stay inside geographic ranges, and all downstream
// math treats them as planar coordinates.
type PeerRecord struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`

	// Elevation is an abstract altitude metric; the renderer uses it only
	// to drive a visual height offset above the globe surface.
	Elevation float64 `json:"elevation"`
}
