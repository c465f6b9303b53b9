package parse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"tidbyt.dev/journeys/storage"
)

// Key facts about a parsed network export.
type NetworkSummary struct {
	Nodes             int
	Relationships     int
	Services          int
	CalendarStartDate string
	CalendarEndDate   string
}

// Parses a zipped network export holding nodes.csv,
// relationships.csv and calendar.txt and/or calendar_dates.txt, and
// writes it all using the provided writer. The writer is closed on
// success.
func ParseNetwork(writer storage.GraphWriter, buf []byte) (*NetworkSummary, error) {
	file := map[string]io.ReadCloser{
		"nodes.csv":          nil,
		"relationships.csv":  nil,
		"calendar.txt":       nil,
		"calendar_dates.txt": nil,
	}

	defer func() {
		for _, rc := range file {
			if rc != nil {
				rc.Close()
			}
		}
	}()

	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("unzipping: %w", err)
	}

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		path := strings.Split(f.Name, "/")
		fName := path[len(path)-1]

		if _, found := file[fName]; !found {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}

		file[fName] = rc
	}

	if file["calendar.txt"] == nil && file["calendar_dates.txt"] == nil {
		return nil, fmt.Errorf("missing calendar.txt and calendar_dates.txt")
	}

	for _, required := range []string{"nodes.csv", "relationships.csv"} {
		if file[required] == nil {
			return nil, fmt.Errorf("missing %s", required)
		}
	}

	SetupCSVReader()

	summary := &NetworkSummary{}

	period := newServicePeriod()
	if file["calendar.txt"] != nil {
		calendar, err := ParseCalendar(writer, file["calendar.txt"])
		if err != nil {
			return nil, fmt.Errorf("parsing calendar.txt: %w", err)
		}
		period.Merge(calendar)
	}
	if file["calendar_dates.txt"] != nil {
		exceptions, err := ParseCalendarDates(writer, file["calendar_dates.txt"])
		if err != nil {
			return nil, fmt.Errorf("parsing calendar_dates.txt: %w", err)
		}
		period.Merge(exceptions)
	}
	summary.CalendarStartDate = period.StartDate
	summary.CalendarEndDate = period.EndDate
	summary.Services = len(period.Services)

	nodes, err := ParseNodes(writer, file["nodes.csv"])
	if err != nil {
		return nil, fmt.Errorf("parsing nodes.csv: %w", err)
	}
	summary.Nodes = len(nodes)

	err = writer.BeginRelationships()
	if err != nil {
		return nil, fmt.Errorf("beginning relationships: %w", err)
	}
	summary.Relationships, err = ParseRelationships(writer, file["relationships.csv"], nodes)
	if err != nil {
		return nil, fmt.Errorf("parsing relationships.csv: %w", err)
	}
	err = writer.EndRelationships()
	if err != nil {
		return nil, fmt.Errorf("ending relationships: %w", err)
	}

	err = writer.Close()
	if err != nil {
		return nil, fmt.Errorf("closing graph writer: %w", err)
	}

	return summary, nil
}

// LazyCSVReader required (at least) to survive sloppy use of
// quotes. The BOM reader strips unicode BOMs if present.
func SetupCSVReader() {
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})
}
