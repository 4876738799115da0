package scoring

import "math"

const earthRadiusKM = 6371

// Coord is a station location in degrees.
type Coord struct {
	Lat float64
	Lon float64
}

// StationLookup resolves station ids to coordinates.
type StationLookup interface {
	Lookup(id int64) (Coord, bool)
	Len() int
}

// Stations is a fixed in-memory StationLookup.
type Stations map[int64]Coord

// Lookup implements StationLookup.
func (s Stations) Lookup(id int64) (Coord, bool) {
	c, ok := s[id]
	return c, ok
}

// Len implements StationLookup.
func (s Stations) Len() int { return len(s) }

// Haversine returns the great-circle distance between two points in kilometres.
func Haversine(a, b Coord) float64 {
	lat1, lon1 := a.Lat*math.Pi/180, a.Lon*math.Pi/180
	lat2, lon2 := b.Lat*math.Pi/180, b.Lon*math.Pi/180
	dlat := lat2 - lat1
	dlon := lon2 - lon1
	h := math.Pow(math.Sin(dlat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dlon/2), 2)
	return earthRadiusKM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
