package model

import "time"

// Dataset is the complete renderable unit published to globe renderers.
// It is always replaced wholesale; a refresh never patches a previously
// published dataset in place.
type Dataset struct {
	Points    []PeerRecord `json:"points"`
	Labels    []PeerRecord `json:"labels"`
	Arcs      []ArcEdge    `json:"arcs"`
	UpdatedAt time.Time    `json:"updatedAt"`
}
