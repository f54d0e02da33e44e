package feed

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/signalsfoundry/peerglobe/model"
)

// Fallback is the coordinate used for peers whose geolocation lookup failed
// upstream. Plotting them at a fixed spot keeps them visible on the globe
// instead of silently dropping them.
type Fallback struct {
	Lat       float64
	Lon       float64
	Elevation float64
}

// DefaultFallback places unlocated peers at downtown Los Angeles with the
// standard visual elevation.
func DefaultFallback() Fallback {
	return Fallback{Lat: 34.0549, Lon: -118.2426, Elevation: 10000}
}

// peersInfoDocument is the upstream peers-info API shape: a "value" object
// keyed by peer ID, each entry carrying an optional geolocation result.
type peersInfoDocument struct {
	Value map[string]peerInfo `json:"value"`
}

type peerInfo struct {
	Location *peerLocation `json:"location"`
}

type peerLocation struct {
	Status string   `json:"status"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
}

// DecodeSnapshot parses an upstream payload into peer records. Two shapes
// are accepted: a bare JSON array of records (the websocket feed), and the
// peers-info document (the polled HTTP API).
func DecodeSnapshot(data []byte, fallback Fallback) ([]model.PeerRecord, error) {
	trimmed := firstNonSpace(data)
	switch trimmed {
	case '[':
		var records []model.PeerRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decode snapshot array: %w", err)
		}
		return records, nil
	case '{':
		return decodePeersInfo(data, fallback)
	default:
		return nil, fmt.Errorf("decode snapshot: unrecognized payload")
	}
}

// decodePeersInfo flattens a peers-info document into records. Peers with a
// successful location lookup keep their coordinates; everything else lands
// on the fallback spot. Peer IDs are walked in sorted order so a given
// document always yields the same snapshot order.
func decodePeersInfo(data []byte, fallback Fallback) ([]model.PeerRecord, error) {
	var doc peersInfoDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode peers-info document: %w", err)
	}

	ids := make([]string, 0, len(doc.Value))
	for id := range doc.Value {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]model.PeerRecord, 0, len(ids))
	for _, id := range ids {
		info := doc.Value[id]
		record := model.PeerRecord{
			Name:      id,
			Lat:       fallback.Lat,
			Lon:       fallback.Lon,
			Elevation: fallback.Elevation,
		}
		if loc := info.Location; loc != nil && loc.Status == "success" && loc.Lat != nil && loc.Lon != nil {
			record.Lat = *loc.Lat
			record.Lon = *loc.Lon
		}
		records = append(records, record)
	}
	return records, nil
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}
