package matching

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/vptree"
)

var ErrNoGridCells = errors.New("matching: no usable grid cells")

// gridPoint is one grid cell's position in radians, tagged with its flat
// index so a query result can be traced back to the grid.
type gridPoint struct {
	lat  float64
	lon  float64
	flat int
}

// Distance is the haversine great-circle distance on the unit sphere.
func (p gridPoint) Distance(c vptree.Comparable) float64 {
	q := c.(gridPoint)
	sinLat := math.Sin((q.lat - p.lat) / 2)
	sinLon := math.Sin((q.lon - p.lon) / 2)
	h := sinLat*sinLat + math.Cos(p.lat)*math.Cos(q.lat)*sinLon*sinLon
	return 2 * math.Asin(math.Min(1, math.Sqrt(h)))
}

// NearestNeighborStrategy selects, for every observation point, the single
// closest grid cell by great-circle distance. With effort zero the tree is
// built deterministically, so exact-tie results are stable for a fixed
// grid ordering.
type NearestNeighborStrategy struct {
	tree *vptree.Tree
}

// Fit indexes the grid cells given as flat, degree-valued coordinate
// slices. Cells with a NaN coordinate (land) and cells deselected in the
// mask are left out.
func (s *NearestNeighborStrategy) Fit(lat, lon []float64, mask *Mask) error {
	if len(lat) != len(lon) {
		return fmt.Errorf("matching: %d latitudes vs %d longitudes", len(lat), len(lon))
	}
	points := make([]vptree.Comparable, 0, len(lat))
	for flat := range lat {
		if math.IsNaN(lat[flat]) || math.IsNaN(lon[flat]) {
			continue
		}
		if mask != nil && !mask.Selected(flat) {
			continue
		}
		points = append(points, gridPoint{
			lat:  lat[flat] * math.Pi / 180,
			lon:  lon[flat] * math.Pi / 180,
			flat: flat,
		})
	}
	if len(points) == 0 {
		return ErrNoGridCells
	}
	tree, err := vptree.New(points, 0, nil)
	if err != nil {
		return err
	}
	s.tree = tree
	return nil
}

// Query returns the flat grid index closest to each observation point,
// given in degrees.
func (s *NearestNeighborStrategy) Query(obsLat, obsLon []float64) ([]int, error) {
	if s.tree == nil {
		return nil, errors.New("matching: strategy not fitted")
	}
	out := make([]int, len(obsLat))
	for i := range obsLat {
		q := gridPoint{
			lat: obsLat[i] * math.Pi / 180,
			lon: obsLon[i] * math.Pi / 180,
		}
		nearest, _ := s.tree.Nearest(q)
		out[i] = nearest.(gridPoint).flat
	}
	return out, nil
}
