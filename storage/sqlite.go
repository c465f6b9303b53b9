package storage

import (
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tidbyt.dev/journeys/model"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

type SQLiteStorage struct {
	SQLiteConfig

	mutex    sync.Mutex
	networks map[string]*sql.DB
}

type SQLiteGraphWriter struct {
	db           *sql.DB
	relInsertTx  *sql.Tx
	relInsertStm *sql.Stmt
}

type SQLiteGraphReader struct {
	db *sql.DB
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	if onDisk {
		if _, err := os.Stat(directory); err != nil {
			return nil, fmt.Errorf("checking directory: %w", err)
		}
	}

	return &SQLiteStorage{
		SQLiteConfig: SQLiteConfig{
			OnDisk:    onDisk,
			Directory: directory,
		},
		networks: map[string]*sql.DB{},
	}, nil
}

func (s *SQLiteStorage) sourceName(network string) string {
	if s.OnDisk {
		return s.Directory + "/" + network + ".db"
	}
	return ":memory:"
}

func (s *SQLiteStorage) open(network string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", s.sourceName(network))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Each connection to :memory: is a separate database
	if !s.OnDisk {
		db.SetMaxOpenConns(1)
	}

	return db, nil
}

func (s *SQLiteStorage) ListNetworks() ([]string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	found := map[string]bool{}
	for name := range s.networks {
		found[name] = true
	}

	if s.OnDisk {
		entries, err := os.ReadDir(s.Directory)
		if err != nil {
			return nil, fmt.Errorf("listing directory: %w", err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".db") {
				found[strings.TrimSuffix(entry.Name(), ".db")] = true
			}
		}
	}

	names := []string{}
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *SQLiteStorage) GetReader(network string) (Graph, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	db, found := s.networks[network]
	if found {
		return &SQLiteGraphReader{
			db: db,
		}, nil
	}
	if !s.OnDisk {
		return nil, fmt.Errorf("network %s does not exist", network)
	}

	sourceName := s.sourceName(network)
	if _, err := os.Stat(sourceName); os.IsNotExist(err) {
		return nil, fmt.Errorf("network %s does not exist at %s", network, sourceName)
	}

	db, err := s.open(network)
	if err != nil {
		return nil, err
	}

	s.networks[network] = db

	return &SQLiteGraphReader{
		db: db,
	}, nil
}

func (s *SQLiteStorage) GetWriter(network string) (GraphWriter, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if old, found := s.networks[network]; found {
		old.Close()
		delete(s.networks, network)
	}

	if s.OnDisk {
		sourceName := s.sourceName(network)
		// delete file if it exists
		if _, err := os.Stat(sourceName); err == nil {
			err := os.Remove(sourceName)
			if err != nil {
				return nil, fmt.Errorf("removing existing database: %w", err)
			}
		}
	}

	db, err := s.open(network)
	if err != nil {
		return nil, err
	}

	for _, table := range []struct {
		name  string
		query string
	}{
		{"nodes", `
CREATE TABLE nodes (
    id TEXT PRIMARY KEY,
    labels INTEGER NOT NULL,
    station_id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    platform_id TEXT NOT NULL,
    hour INTEGER NOT NULL,
    time INTEGER NOT NULL,
    mode INTEGER NOT NULL,
    lat REAL NOT NULL,
    lon REAL NOT NULL,
    cost INTEGER NOT NULL,
    stop_seq INTEGER NOT NULL
);`},
		{"relationships", `
CREATE TABLE relationships (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    type INTEGER NOT NULL,
    start_id TEXT NOT NULL,
    end_id TEXT NOT NULL,
    station_id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    platform_id TEXT NOT NULL,
    hour INTEGER NOT NULL,
    time INTEGER NOT NULL,
    mode INTEGER NOT NULL,
    lat REAL NOT NULL,
    lon REAL NOT NULL,
    cost INTEGER NOT NULL,
    stop_seq INTEGER NOT NULL
);
CREATE INDEX relationships_start_id ON relationships (start_id, type);
`},
		{"calendar", `
CREATE TABLE calendar (
    service_id TEXT PRIMARY KEY,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    monday integer NOT NULL,
    tuesday integer NOT NULL,
    wednesday integer NOT NULL,
    thursday integer NOT NULL,
    friday integer NOT NULL,
    saturday integer NOT NULL,
    sunday integer NOT NULL
);`},
		{"calendar_dates", `
CREATE TABLE calendar_dates (
    service_id TEXT NOT NULL,
    date TEXT NOT NULL,
    exception_type INTEGER NOT NULL
);`},
	} {
		_, err = db.Exec(table.query)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating %s table: %w", table.name, err)
		}
	}

	s.networks[network] = db

	return &SQLiteGraphWriter{
		db: db,
	}, nil
}

func propertyArgs(p *Properties) []interface{} {
	return []interface{}{
		p.StationID,
		p.RouteID,
		p.ServiceID,
		p.TripID,
		p.PlatformID,
		p.Hour,
		int64(p.Time / time.Second),
		int(p.Mode),
		p.Lat,
		p.Lon,
		int64(p.Cost / time.Second),
		p.StopSeq,
	}
}

const propertyColumns = `station_id, route_id, service_id, trip_id, platform_id, hour, time, mode, lat, lon, cost, stop_seq`

// Scan targets for propertyColumns. Call the returned func after
// Scan() to convert units.
func propertyDest(p *Properties) ([]interface{}, func()) {
	var t, cost int64
	var mode int
	dest := []interface{}{
		&p.StationID,
		&p.RouteID,
		&p.ServiceID,
		&p.TripID,
		&p.PlatformID,
		&p.Hour,
		&t,
		&mode,
		&p.Lat,
		&p.Lon,
		&cost,
		&p.StopSeq,
	}
	return dest, func() {
		p.Time = time.Duration(t) * time.Second
		p.Cost = time.Duration(cost) * time.Second
		p.Mode = model.TransportMode(mode)
	}
}

func (w *SQLiteGraphWriter) WriteNode(node *Node) error {
	args := append([]interface{}{node.ID, int64(node.Labels)}, propertyArgs(&node.Properties)...)
	_, err := w.db.Exec(`
INSERT INTO nodes (id, labels, `+propertyColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("inserting node: %w", err)
	}
	return nil
}

func (w *SQLiteGraphWriter) BeginRelationships() error {
	var err error
	w.relInsertTx, err = w.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning relationship insert transaction: %w", err)
	}

	w.relInsertStm, err = w.relInsertTx.Prepare(`
INSERT INTO relationships (type, start_id, end_id, ` + propertyColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		w.relInsertTx.Rollback()
		w.relInsertTx = nil
		return fmt.Errorf("preparing relationship insert: %w", err)
	}

	return nil
}

func (w *SQLiteGraphWriter) WriteRelationship(rel *Relationship) error {
	if w.relInsertStm == nil {
		return fmt.Errorf("WriteRelationship called outside BeginRelationships/EndRelationships")
	}

	args := append([]interface{}{int(rel.Type), rel.Start, rel.End}, propertyArgs(&rel.Properties)...)
	_, err := w.relInsertStm.Exec(args...)
	if err != nil {
		w.relInsertStm.Close()
		w.relInsertTx.Rollback()
		w.relInsertTx = nil
		w.relInsertStm = nil
		return fmt.Errorf("inserting relationship: %w", err)
	}

	return nil
}

func (w *SQLiteGraphWriter) EndRelationships() error {
	if w.relInsertTx == nil {
		return nil
	}

	// commit transaction and clean up
	w.relInsertStm.Close()
	err := w.relInsertTx.Commit()
	if err != nil {
		return fmt.Errorf("committing relationship insert transaction: %w", err)
	}
	w.relInsertTx = nil
	w.relInsertStm = nil

	return nil
}

func (w *SQLiteGraphWriter) WriteCalendar(cal *model.Calendar) error {
	mon, tue, wed, thu, fri, sat, sun := weekdayColumns(cal.Weekday)
	_, err := w.db.Exec(`
INSERT INTO calendar (service_id, start_date, end_date, monday, tuesday, wednesday, thursday, friday, saturday, sunday)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cal.ServiceID,
		cal.StartDate,
		cal.EndDate,
		mon, tue, wed, thu, fri, sat, sun,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar: %w", err)
	}
	return nil
}

func (w *SQLiteGraphWriter) WriteCalendarDate(cd *model.CalendarDate) error {
	_, err := w.db.Exec(`
INSERT INTO calendar_dates (service_id, date, exception_type)
VALUES (?, ?, ?)`,
		cd.ServiceID,
		cd.Date,
		cd.ExceptionType,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar_date: %w", err)
	}
	return nil
}

func (w *SQLiteGraphWriter) Close() error {
	_, err := w.db.Exec(`ANALYZE;`)
	if err != nil {
		w.db.Close()
		return fmt.Errorf("analyzing database: %w", err)
	}

	return nil
}

func (r *SQLiteGraphReader) Node(id string) (*Node, error) {
	node := &Node{}
	var labels int64
	dest, convert := propertyDest(&node.Properties)
	err := r.db.QueryRow(`
SELECT id, labels, `+propertyColumns+`
FROM nodes
WHERE id = ?`, id).Scan(append([]interface{}{&node.ID, &labels}, dest...)...)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying node: %w", err)
	}
	convert()
	node.Labels = Labels(labels)
	return node, nil
}

func (r *SQLiteGraphReader) Outgoing(nodeID string, types ...RelationshipType) ([]*Relationship, error) {
	query := `
SELECT type, start_id, end_id, ` + propertyColumns + `
FROM relationships
WHERE start_id = ?`
	params := []interface{}{nodeID}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			params = append(params, int(t))
		}
		query += " AND type IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY seq"

	rows, err := r.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defer rows.Close()

	rels := []*Relationship{}
	for rows.Next() {
		rel := &Relationship{}
		var relType int
		dest, convert := propertyDest(&rel.Properties)
		err := rows.Scan(append([]interface{}{&relType, &rel.Start, &rel.End}, dest...)...)
		if err != nil {
			return nil, fmt.Errorf("scanning relationship: %w", err)
		}
		convert()
		rel.Type = RelationshipType(relType)
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relationships: %w", err)
	}

	return rels, nil
}

func (r *SQLiteGraphReader) NodesByLabel(labels Labels) ([]*Node, error) {
	rows, err := r.db.Query(`
SELECT id, labels, `+propertyColumns+`
FROM nodes
WHERE labels & ? = ? AND ? != 0
ORDER BY id`, int64(labels), int64(labels), int64(labels))
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	nodes := []*Node{}
	for rows.Next() {
		node := &Node{}
		var l int64
		dest, convert := propertyDest(&node.Properties)
		err := rows.Scan(append([]interface{}{&node.ID, &l}, dest...)...)
		if err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		convert()
		node.Labels = Labels(l)
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}

	return nodes, nil
}

func (r *SQLiteGraphReader) ActiveServices(date string) ([]string, error) {
	parsedDate, err := time.Parse("20060102", date)
	if err != nil {
		return nil, fmt.Errorf("invalid date: %s", date)
	}

	weekday := weekdayColumn(parsedDate.Weekday())

	rows, err := r.db.Query(`
WITH
Exceptions AS (
	SELECT service_id, exception_type
	FROM calendar_dates
	WHERE date = ?
),
Regular AS (
	SELECT service_id
	FROM calendar
	WHERE `+weekday+` = 1 AND
	      start_date <= ? AND
	      end_date >= ?
)
SELECT service_id
FROM Regular
WHERE service_id NOT IN (
	SELECT service_id FROM Exceptions WHERE exception_type = 2
)
UNION
SELECT service_id
FROM Exceptions
WHERE exception_type = 1
ORDER BY service_id
`, date, date, date)
	if err != nil {
		return nil, fmt.Errorf("querying for active services: %w", err)
	}
	defer rows.Close()

	activeServices := []string{}
	for rows.Next() {
		var serviceID string
		err = rows.Scan(&serviceID)
		if err != nil {
			return nil, fmt.Errorf("scanning active services: %w", err)
		}
		activeServices = append(activeServices, serviceID)
	}

	return activeServices, nil
}

func weekdayColumn(day time.Weekday) string {
	switch day {
	case time.Monday:
		return "monday"
	case time.Tuesday:
		return "tuesday"
	case time.Wednesday:
		return "wednesday"
	case time.Thursday:
		return "thursday"
	case time.Friday:
		return "friday"
	case time.Saturday:
		return "saturday"
	}
	return "sunday"
}

func weekdayColumns(weekday int8) (mon, tue, wed, thu, fri, sat, sun int) {
	bit := func(day time.Weekday) int {
		if weekday&(1<<day) != 0 {
			return 1
		}
		return 0
	}
	return bit(time.Monday), bit(time.Tuesday), bit(time.Wednesday),
		bit(time.Thursday), bit(time.Friday), bit(time.Saturday), bit(time.Sunday)
}
