package core

import "strconv"

// clusterKeyDecimals is the quantization precision used to decide whether
// two peers occupy the same spot. Four fractional degree digits is roughly
// 11 m at the equator, well below anything distinguishable on the globe.
const clusterKeyDecimals = 4

// ClusterKey maps a coordinate pair to its quantized cluster identity.
// Two peers share a cluster iff their keys are equal.
func ClusterKey(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', clusterKeyDecimals, 64) +
		"," +
		strconv.FormatFloat(lon, 'f', clusterKeyDecimals, 64)
}
