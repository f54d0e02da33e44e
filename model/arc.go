package model

// Color is a CSS color value understood by the renderer.
type Color string

// DefaultArcColor is used when no arc color is configured.
const DefaultArcColor Color = "rgba(45, 212, 191, 0.55)"

// ArcEdge is one directed visual edge between two peers. Field names follow
// the renderer's arc layer accessors (startLat/startLng/endLat/endLng).
type ArcEdge struct {
	StartLat float64 `json:"startLat"`
	StartLng float64 `json:"startLng"`
	EndLat   float64 `json:"endLat"`
	EndLng   float64 `json:"endLng"`
	Color    Color   `json:"color"`
}
