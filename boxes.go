package journeys

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"tidbyt.dev/journeys/model"
	"tidbyt.dev/journeys/storage"
)

// A grid cell of stations. ID is "row_col", counted from the south
// west corner of the grid.
type BoundingBox struct {
	ID       string
	Row      int
	Col      int
	Stations []*storage.Node
}

type BoxResult struct {
	Box      BoundingBox
	Journeys []*model.Journey

	// The destination is in the box, so nothing was searched.
	ContainsDestination bool
}

// Groups stations into square cells of the given size. Stations
// without coordinates are left out. Boxes are ordered by ID.
func GroupStations(stations []*storage.Node, boxSizeKm float64) []BoundingBox {
	located := []*storage.Node{}
	minLat, minLon := math.Inf(1), math.Inf(1)
	for _, s := range stations {
		if s.Lat == 0 && s.Lon == 0 {
			continue
		}
		located = append(located, s)
		minLat = math.Min(minLat, s.Lat)
		minLon = math.Min(minLon, s.Lon)
	}
	if len(located) == 0 || boxSizeKm <= 0 {
		return nil
	}

	cells := map[[2]int]*BoundingBox{}
	for _, s := range located {
		row := int(storage.HaversineDistance(minLat, s.Lon, s.Lat, s.Lon) / boxSizeKm)
		col := int(storage.HaversineDistance(s.Lat, minLon, s.Lat, s.Lon) / boxSizeKm)
		key := [2]int{row, col}
		box, found := cells[key]
		if !found {
			box = &BoundingBox{ID: fmt.Sprintf("%d_%d", row, col), Row: row, Col: col}
			cells[key] = box
		}
		box.Stations = append(box.Stations, s)
	}

	boxes := make([]BoundingBox, 0, len(cells))
	for _, box := range cells {
		boxes = append(boxes, *box)
	}
	sort.Slice(boxes, func(i, j int) bool {
		if boxes[i].Row != boxes[j].Row {
			return boxes[i].Row < boxes[j].Row
		}
		return boxes[i].Col < boxes[j].Col
	})
	return boxes
}

// Finds journeys to the destination from the stations of each box.
// Boxes are searched concurrently, each with caches of its own, and
// results come back in the order of the boxes given. req.MaxResults
// applies per box.
func (c *Calculator) CalculateForBoxes(
	ctx context.Context,
	req model.JourneyRequest,
	dest Endpoint,
	boxes []BoundingBox,
) ([]BoxResult, error) {

	results := make([]BoxResult, len(boxes))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, box := range boxes {
		i, box := i, box
		g.Go(func() error {
			result, err := c.calculateForBox(ctx, req, dest, box)
			if err != nil {
				return fmt.Errorf("box %s: %w", box.ID, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Calculator) calculateForBox(
	ctx context.Context,
	req model.JourneyRequest,
	dest Endpoint,
	box BoundingBox,
) (BoxResult, error) {

	result := BoxResult{Box: box, Journeys: []*model.Journey{}}

	graph := storage.NewOverlay(c.network.Graph)
	to, err := c.resolveDestination(graph, req, dest)
	if err != nil {
		return result, fmt.Errorf("resolving destination: %w", err)
	}

	endStations := map[string]bool{}
	for _, s := range to.stations {
		endStations[s] = true
	}
	for _, s := range box.Stations {
		if endStations[s.Station()] {
			result.ContainsDestination = true
			return result, nil
		}
	}

	e := c.newExecution(req)
	remaining := req.MaxResults
	for _, station := range box.Stations {
		plan, err := c.plan(ctx, graph, req, station, []string{station.Station()}, to)
		if err != nil {
			return result, err
		}
		if plan == nil {
			continue
		}

		found, stopped, err := c.execute(ctx, plan, e, remaining, func(j *model.Journey) bool {
			result.Journeys = append(result.Journeys, j)
			return true
		})
		if err != nil {
			return result, err
		}
		if stopped {
			break
		}
		if req.MaxResults > 0 {
			remaining -= found
		}
	}

	c.logStats(req, e, len(result.Journeys), nil)
	return result, nil
}
