package core

import "github.com/signalsfoundry/peerglobe/model"

// BuildArcs synthesizes the complete directed edge set over the peer list:
// one ArcEdge per ordered pair (i, j), i ≠ j, all sharing the given color.
// Both directions of a pair are emitted on purpose; the renderer shows
// direction via a gradient, so A→B and B→A are distinct arcs.
//
// For fewer than two peers the result is empty. The edge count is n·(n−1),
// which is fine for the few hundred peers this service is built for and
// deliberately not beyond that.
func BuildArcs(peers []model.PeerRecord, color model.Color) []model.ArcEdge {
	if len(peers) < 2 {
		return nil
	}
	if color == "" {
		color = model.DefaultArcColor
	}

	arcs := make([]model.ArcEdge, 0, len(peers)*(len(peers)-1))
	for i := range peers {
		for j := range peers {
			if i == j {
				continue
			}
			arcs = append(arcs, model.ArcEdge{
				StartLat: peers[i].Lat,
				StartLng: peers[i].Lon,
				EndLat:   peers[j].Lat,
				EndLng:   peers[j].Lon,
				Color:    color,
			})
		}
	}
	return arcs
}
