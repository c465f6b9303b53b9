package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/journeys/model"
	"tidbyt.dev/journeys/storage"
)

type CalendarCSV struct {
	ServiceID string `csv:"service_id"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
	Monday    int8   `csv:"monday"`
	Tuesday   int8   `csv:"tuesday"`
	Wednesday int8   `csv:"wednesday"`
	Thursday  int8   `csv:"thursday"`
	Friday    int8   `csv:"friday"`
	Saturday  int8   `csv:"saturday"`
	Sunday    int8   `csv:"sunday"`
}

// Services declared by a network's calendar files, and the range of
// dates they cover.
type ServicePeriod struct {
	Services  map[string]bool
	StartDate string
	EndDate   string
}

func newServicePeriod() *ServicePeriod {
	return &ServicePeriod{Services: map[string]bool{}}
}

func (p *ServicePeriod) cover(start, end string) {
	if p.StartDate == "" || start < p.StartDate {
		p.StartDate = start
	}
	if p.EndDate == "" || end > p.EndDate {
		p.EndDate = end
	}
}

// Folds other into p.
func (p *ServicePeriod) Merge(other *ServicePeriod) {
	for serviceID := range other.Services {
		p.Services[serviceID] = true
	}
	if other.StartDate != "" {
		p.cover(other.StartDate, other.EndDate)
	}
}

func checkDate(date string) error {
	_, err := time.ParseInLocation("20060102", date, time.UTC)
	return err
}

func ParseCalendar(writer storage.GraphWriter, data io.Reader) (*ServicePeriod, error) {
	calendarCsv := []*CalendarCSV{}
	if err := gocsv.Unmarshal(data, &calendarCsv); err != nil {
		return nil, fmt.Errorf("unmarshaling csv: %w", err)
	}

	period := newServicePeriod()

	for _, c := range calendarCsv {
		if c.ServiceID == "" {
			return nil, fmt.Errorf("empty service_id")
		}
		if period.Services[c.ServiceID] {
			return nil, fmt.Errorf("repeated service_id '%s'", c.ServiceID)
		}
		period.Services[c.ServiceID] = true

		var weekday int8
		for _, day := range []struct {
			value int8
			day   time.Weekday
		}{
			{c.Monday, time.Monday},
			{c.Tuesday, time.Tuesday},
			{c.Wednesday, time.Wednesday},
			{c.Thursday, time.Thursday},
			{c.Friday, time.Friday},
			{c.Saturday, time.Saturday},
			{c.Sunday, time.Sunday},
		} {
			switch day.value {
			case 1:
				weekday |= 1 << day.day
			case 0:
			default:
				return nil, fmt.Errorf("invalid %s value '%d'", day.day, day.value)
			}
		}

		if err := checkDate(c.StartDate); err != nil {
			return nil, fmt.Errorf("parsing start_date: %w", err)
		}
		if err := checkDate(c.EndDate); err != nil {
			return nil, fmt.Errorf("parsing end_date: %w", err)
		}
		if c.EndDate < c.StartDate {
			return nil, fmt.Errorf("service '%s' ends before it starts", c.ServiceID)
		}
		period.cover(c.StartDate, c.EndDate)

		err := writer.WriteCalendar(&model.Calendar{
			ServiceID: c.ServiceID,
			StartDate: c.StartDate,
			EndDate:   c.EndDate,
			Weekday:   weekday,
		})
		if err != nil {
			return nil, fmt.Errorf("writing calendar: %w", err)
		}
	}

	return period, nil
}
