package core

import (
	"math"

	"github.com/signalsfoundry/peerglobe/model"
)

// DefaultSpreadRadiusDeg is the outer ring radius, in planar degrees, used
// when no radius is configured.
const DefaultSpreadRadiusDeg = 2.0

// Spread repositions peers that share a quantized coordinate onto concentric
// rings around their common center so they no longer overlap visually.
// Singleton clusters pass through untouched.
//
// The result is a new slice of new records: the input is never mutated, and
// ordering and length are preserved exactly. Ring k (1-based) holds up to 6k
// members at radius (k / ceil(sqrt(n))) * radiusDeg from the cluster center;
// within a ring of m members, member i sits at angle (i/m)*2π with the cosine
// offset applied to latitude and the sine offset to longitude.
//
// This is a planar degree-space approximation, not a geodesic projection.
// The output feeds a cosmetic renderer only, where a roughly circular spread
// is all that matters.
func Spread(peers []model.PeerRecord, radiusDeg float64) []model.PeerRecord {
	out := make([]model.PeerRecord, len(peers))
	copy(out, peers)

	for _, members := range groupByClusterKey(peers) {
		n := len(members)
		if n < 2 {
			continue
		}

		// All members share the same quantized spot; the first one defines
		// the ring center.
		center := peers[members[0]]
		norm := math.Ceil(math.Sqrt(float64(n)))

		placed := 0
		for ring := 1; placed < n; ring++ {
			m := n - placed
			if capacity := 6 * ring; m > capacity {
				m = capacity
			}
			r := (float64(ring) / norm) * radiusDeg

			for i := 0; i < m; i++ {
				angle := (float64(i) / float64(m)) * 2 * math.Pi
				idx := members[placed+i]
				out[idx].Lat = center.Lat + r*math.Cos(angle)
				out[idx].Lon = center.Lon + r*math.Sin(angle)
			}
			placed += m
		}
	}

	return out
}

// CoincidentClusters reports how many clusters of size > 1 the snapshot
// contains, i.e. how many groups Spread would actually reposition.
func CoincidentClusters(peers []model.PeerRecord) int {
	count := 0
	for _, members := range groupByClusterKey(peers) {
		if len(members) > 1 {
			count++
		}
	}
	return count
}

// groupByClusterKey groups peer indices by ClusterKey, preserving first-seen
// order of both groups and members. Returning indices (not records) lets
// Spread write repositioned members back to their original slots.
func groupByClusterKey(peers []model.PeerRecord) [][]int {
	groups := make([][]int, 0, len(peers))
	byKey := make(map[string]int, len(peers))

	for i, p := range peers {
		key := ClusterKey(p.Lat, p.Lon)
		gi, ok := byKey[key]
		if !ok {
			gi = len(groups)
			byKey[key] = gi
			groups = append(groups, nil)
		}
		groups[gi] = append(groups[gi], i)
	}

	return groups
}
