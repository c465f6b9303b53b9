package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"tidbyt.dev/journeys/storage"
)

type RelationshipCSV struct {
	Type       string `csv:"type"`
	Start      string `csv:"start"`
	End        string `csv:"end"`
	Cost       int    `csv:"cost"`
	StationID  string `csv:"station_id"`
	RouteID    string `csv:"route_id"`
	ServiceID  string `csv:"service_id"`
	TripID     string `csv:"trip_id"`
	PlatformID string `csv:"platform_id"`
	Hour       int    `csv:"hour"`
	Time       string `csv:"time"`
	Mode       string `csv:"mode"`
	StopSeq    int    `csv:"stop_seq"`
}

// Parses relationships.csv. Both ends of every relationship must be
// among the given nodes. Cost is given in whole minutes. Returns
// number of relationships written.
func ParseRelationships(
	writer storage.GraphWriter,
	data io.Reader,
	nodes map[string]bool,
) (int, error) {

	count := 0

	i := -1
	err := gocsv.UnmarshalToCallbackWithError(data, func(r *RelationshipCSV) error {
		i++

		relType, err := storage.ParseRelationshipType(r.Type)
		if err != nil {
			return errors.Wrapf(err, "parsing type (row %d)", i+1)
		}

		if !nodes[r.Start] {
			return fmt.Errorf("unknown start node '%s' (row %d)", r.Start, i+1)
		}
		if !nodes[r.End] {
			return fmt.Errorf("unknown end node '%s' (row %d)", r.End, i+1)
		}
		if r.Cost < 0 {
			return fmt.Errorf("negative cost (row %d)", i+1)
		}
		if relType.IsGoesTo() && r.TripID == "" {
			return fmt.Errorf("%s without trip_id (row %d)", relType, i+1)
		}

		t, err := parseOptionalTime(r.Time)
		if err != nil {
			return errors.Wrapf(err, "parsing time (row %d)", i+1)
		}

		mode, err := parseOptionalMode(r.Mode)
		if err != nil {
			return errors.Wrapf(err, "parsing mode (row %d)", i+1)
		}
		if relType.IsGoesTo() {
			mode = relType.Mode()
		}

		err = writer.WriteRelationship(&storage.Relationship{
			Type:  relType,
			Start: r.Start,
			End:   r.End,
			Properties: storage.Properties{
				StationID:  r.StationID,
				RouteID:    r.RouteID,
				ServiceID:  r.ServiceID,
				TripID:     r.TripID,
				PlatformID: r.PlatformID,
				Hour:       r.Hour,
				Time:       t,
				Mode:       mode,
				Cost:       time.Duration(r.Cost) * time.Minute,
				StopSeq:    r.StopSeq,
			},
		})
		if err != nil {
			return errors.Wrapf(err, "writing relationship (row %d)", i+1)
		}
		count++

		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "unmarshaling relationships csv")
	}

	return count, nil
}
