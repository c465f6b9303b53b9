package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/journeys/model"
	"tidbyt.dev/journeys/storage"
)

type CalendarDateCSV struct {
	ServiceID     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType int8   `csv:"exception_type"`
}

// Exceptions may name services missing from calendar.txt. Those
// services only run on the dates they're added.
func ParseCalendarDates(writer storage.GraphWriter, data io.Reader) (*ServicePeriod, error) {
	rows := []*CalendarDateCSV{}
	if err := gocsv.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling calendar_dates csv: %w", err)
	}

	period := newServicePeriod()
	seen := map[[2]string]bool{}

	for _, row := range rows {
		if row.ServiceID == "" {
			return nil, fmt.Errorf("empty service_id")
		}
		if row.ExceptionType != model.ExceptionTypeAdded && row.ExceptionType != model.ExceptionTypeRemoved {
			return nil, fmt.Errorf("illegal exception_type: '%d'", row.ExceptionType)
		}
		if err := checkDate(row.Date); err != nil {
			return nil, fmt.Errorf("parsing date '%s': %w", row.Date, err)
		}

		key := [2]string{row.ServiceID, row.Date}
		if seen[key] {
			return nil, fmt.Errorf("duplicate exception for '%s' on %s", row.ServiceID, row.Date)
		}
		seen[key] = true

		period.Services[row.ServiceID] = true
		period.cover(row.Date, row.Date)

		err := writer.WriteCalendarDate(&model.CalendarDate{
			ServiceID:     row.ServiceID,
			Date:          row.Date,
			ExceptionType: row.ExceptionType,
		})
		if err != nil {
			return nil, fmt.Errorf("writing calendar_date: %w", err)
		}
	}

	return period, nil
}
