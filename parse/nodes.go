package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"tidbyt.dev/journeys/model"
	"tidbyt.dev/journeys/storage"
)

type NodeCSV struct {
	ID         string  `csv:"id"`
	Labels     string  `csv:"labels"`
	StationID  string  `csv:"station_id"`
	RouteID    string  `csv:"route_id"`
	ServiceID  string  `csv:"service_id"`
	TripID     string  `csv:"trip_id"`
	PlatformID string  `csv:"platform_id"`
	Hour       int     `csv:"hour"`
	Time       string  `csv:"time"`
	Mode       string  `csv:"mode"`
	Lat        float64 `csv:"lat"`
	Lon        float64 `csv:"lon"`
}

// Optional HH:MM value.
func parseOptionalTime(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return model.ParseTime(s)
}

func parseOptionalMode(s string) (model.TransportMode, error) {
	if s == "" {
		return model.ModeNone, nil
	}
	return model.ParseTransportMode(s)
}

// Parses nodes.csv. Returns set of all node IDs.
func ParseNodes(writer storage.GraphWriter, data io.Reader) (map[string]bool, error) {
	nodes := map[string]bool{}

	i := -1
	err := gocsv.UnmarshalToCallbackWithError(data, func(n *NodeCSV) error {
		i++

		if n.ID == "" {
			return fmt.Errorf("empty id (row %d)", i+1)
		}
		if nodes[n.ID] {
			return fmt.Errorf("repeated id '%s' (row %d)", n.ID, i+1)
		}
		nodes[n.ID] = true

		labels, err := storage.ParseLabels(n.Labels)
		if err != nil {
			return errors.Wrapf(err, "parsing labels (row %d)", i+1)
		}
		if labels == 0 {
			return fmt.Errorf("node '%s' has no labels (row %d)", n.ID, i+1)
		}

		t, err := parseOptionalTime(n.Time)
		if err != nil {
			return errors.Wrapf(err, "parsing time (row %d)", i+1)
		}

		mode, err := parseOptionalMode(n.Mode)
		if err != nil {
			return errors.Wrapf(err, "parsing mode (row %d)", i+1)
		}
		if mode == model.ModeNone {
			mode = labels.Mode()
		}

		if n.Hour < 0 || n.Hour > 47 {
			return fmt.Errorf("invalid hour %d (row %d)", n.Hour, i+1)
		}

		err = writer.WriteNode(&storage.Node{
			ID:     n.ID,
			Labels: labels,
			Properties: storage.Properties{
				StationID:  n.StationID,
				RouteID:    n.RouteID,
				ServiceID:  n.ServiceID,
				TripID:     n.TripID,
				PlatformID: n.PlatformID,
				Hour:       n.Hour,
				Time:       t,
				Mode:       mode,
				Lat:        n.Lat,
				Lon:        n.Lon,
			},
		})
		if err != nil {
			return errors.Wrapf(err, "writing node (row %d)", i+1)
		}

		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "unmarshaling nodes csv")
	}

	return nodes, nil
}
