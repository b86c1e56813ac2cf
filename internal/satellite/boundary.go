package satellite

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/agsys/smart-irrigation/internal/storage"
)

const metersPerDegree = 111320.0

// FarmPolygon returns the area the NDVI processor should sample for a farm.
// A stored GeoJSON boundary (geometry or feature, Polygon or MultiPolygon)
// wins; otherwise a square of the farm's area is centred on its coordinates.
func FarmPolygon(farm *storage.Farm) (orb.Geometry, error) {
	if farm.Boundary != "" {
		g, err := parseBoundary([]byte(farm.Boundary))
		if err != nil {
			return nil, fmt.Errorf("farm %s boundary: %w", farm.ID, err)
		}
		return g, nil
	}
	return squareAround(orb.Point{farm.Longitude, farm.Latitude}, farm.AreaHectares), nil
}

// Centroid returns the area-weighted centroid of a boundary
func Centroid(g orb.Geometry) orb.Point {
	c, _ := planar.CentroidArea(g)
	return c
}

func parseBoundary(data []byte) (orb.Geometry, error) {
	var g orb.Geometry
	if geom, err := geojson.UnmarshalGeometry(data); err == nil && geom.Coordinates != nil {
		g = geom.Geometry()
	} else if f, ferr := geojson.UnmarshalFeature(data); ferr == nil && f.Geometry != nil {
		g = f.Geometry
	} else {
		return nil, fmt.Errorf("%w: not a GeoJSON geometry or feature", ErrInvalidBoundary)
	}

	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return g, nil
	default:
		return nil, fmt.Errorf("%w: %s is not a polygon", ErrInvalidBoundary, g.GeoJSONType())
	}
}

// squareAround approximates a farm without a stored boundary. Areas of zero
// or less count as one hectare.
func squareAround(center orb.Point, hectares float64) orb.Polygon {
	if hectares <= 0 {
		hectares = 1
	}
	half := math.Sqrt(hectares*10000) / 2

	dLat := half / metersPerDegree
	dLon := half / (metersPerDegree * math.Max(math.Cos(center.Lat()*math.Pi/180), 0.01))

	b := orb.Bound{
		Min: orb.Point{center.Lon() - dLon, center.Lat() - dLat},
		Max: orb.Point{center.Lon() + dLon, center.Lat() + dLat},
	}
	return b.ToPolygon()
}
