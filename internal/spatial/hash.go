package spatial

import "math"

// Hash grid parameters
const (
	MetersPerDegree = 111320.0
	CoarseGridM     = 250.0
	FineGridM       = 50.0
	MillisPerDay    = 86_400_000
)

// Hash derives the coarse (250 m per day) and fine (50 m per day) grouping
// keys of a point. Both pack the day bucket above bit 40 and the quantized
// latitude and longitude offsets in two 20 bit fields below it.
func Hash(lat, lon float64, timestampMillis int64) (coarse, fine int64) {
	day := timestampMillis / MillisPerDay

	// equirectangular offset from the south-west corner of the map
	latM := (lat + 90) * MetersPerDegree
	lonM := (lon + 180) * MetersPerDegree * math.Cos(lat*math.Pi/180)

	coarse = pack(day, quantize(latM, CoarseGridM), quantize(lonM, CoarseGridM))
	fine = pack(day, quantize(latM, FineGridM), quantize(lonM, FineGridM))
	return coarse, fine
}

func quantize(meters, grid float64) int64 {
	return int64(math.Floor(meters / grid))
}

func pack(day, lat, lon int64) int64 {
	return day<<40 | lat<<20 | lon
}
