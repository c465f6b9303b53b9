package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"tidbyt.dev/journeys/model"
)

const (
	PSQLRelationshipBatchSize = 5000
)

type PSQLStorage struct {
	db *sql.DB
}

type PSQLGraphWriter struct {
	network string
	db      *sql.DB
	relBuf  []*Relationship
	relSeq  int64
}

type PSQLGraphReader struct {
	network string
	db      *sql.DB
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`
DROP TABLE IF EXISTS network;
DROP TABLE IF EXISTS nodes;
DROP TABLE IF EXISTS relationships;
DROP TABLE IF EXISTS calendar;
DROP TABLE IF EXISTS calendar_dates;
`)
		if err != nil {
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS network (
    name TEXT PRIMARY KEY,
    written_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS nodes (
    network TEXT NOT NULL,
    id TEXT NOT NULL,
    labels BIGINT NOT NULL,
    station_id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    platform_id TEXT NOT NULL,
    hour INTEGER NOT NULL,
    time BIGINT NOT NULL,
    mode INTEGER NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    cost BIGINT NOT NULL,
    stop_seq INTEGER NOT NULL,
    PRIMARY KEY (network, id)
);

CREATE TABLE IF NOT EXISTS relationships (
    network TEXT NOT NULL,
    seq BIGINT NOT NULL,
    type INTEGER NOT NULL,
    start_id TEXT NOT NULL,
    end_id TEXT NOT NULL,
    station_id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    platform_id TEXT NOT NULL,
    hour INTEGER NOT NULL,
    time BIGINT NOT NULL,
    mode INTEGER NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    cost BIGINT NOT NULL,
    stop_seq INTEGER NOT NULL,
    PRIMARY KEY (network, seq)
);
CREATE INDEX IF NOT EXISTS relationships_start_id ON relationships (network, start_id, type);

CREATE TABLE IF NOT EXISTS calendar (
    network TEXT NOT NULL,
    service_id TEXT NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    monday INTEGER NOT NULL,
    tuesday INTEGER NOT NULL,
    wednesday INTEGER NOT NULL,
    thursday INTEGER NOT NULL,
    friday INTEGER NOT NULL,
    saturday INTEGER NOT NULL,
    sunday INTEGER NOT NULL,
    PRIMARY KEY (network, service_id)
);

CREATE TABLE IF NOT EXISTS calendar_dates (
    network TEXT NOT NULL,
    service_id TEXT NOT NULL,
    date TEXT NOT NULL,
    exception_type INTEGER NOT NULL
);`)
	if err != nil {
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &PSQLStorage{
		db: db,
	}, nil
}

func (s *PSQLStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}

func (s *PSQLStorage) ListNetworks() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM network ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing networks: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning network: %w", err)
		}
		names = append(names, name)
	}

	return names, nil
}

func (s *PSQLStorage) GetReader(network string) (Graph, error) {
	var name string
	err := s.db.QueryRow(`SELECT name FROM network WHERE name = $1`, network).Scan(&name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("network %s does not exist", network)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up network: %w", err)
	}

	return &PSQLGraphReader{
		network: network,
		db:      s.db,
	}, nil
}

func (s *PSQLStorage) GetWriter(network string) (GraphWriter, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"nodes", "relationships", "calendar", "calendar_dates"} {
		_, err = tx.Exec(`DELETE FROM `+table+` WHERE network = $1`, network)
		if err != nil {
			return nil, fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	_, err = tx.Exec(`
INSERT INTO network (name, written_at)
VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET written_at = EXCLUDED.written_at`,
		network,
		time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting network: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("committing: %w", err)
	}

	return &PSQLGraphWriter{
		network: network,
		db:      s.db,
	}, nil
}

func (w *PSQLGraphWriter) WriteNode(node *Node) error {
	args := append([]interface{}{w.network, node.ID, int64(node.Labels)}, propertyArgs(&node.Properties)...)
	_, err := w.db.Exec(`
INSERT INTO nodes (network, id, labels, `+propertyColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("inserting node: %w", err)
	}
	return nil
}

func (w *PSQLGraphWriter) BeginRelationships() error {
	return nil
}

func (w *PSQLGraphWriter) WriteRelationship(rel *Relationship) error {
	w.relBuf = append(w.relBuf, rel)

	if len(w.relBuf) >= PSQLRelationshipBatchSize {
		err := w.flushRelationships()
		if err != nil {
			return fmt.Errorf("flushing relationships: %w", err)
		}
	}

	return nil
}

func (w *PSQLGraphWriter) EndRelationships() error {
	if len(w.relBuf) > 0 {
		err := w.flushRelationships()
		if err != nil {
			return fmt.Errorf("flushing relationships: %w", err)
		}
	}
	return nil
}

func (w *PSQLGraphWriter) flushRelationships() error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn(
		"relationships", "network", "seq", "type", "start_id", "end_id",
		"station_id", "route_id", "service_id", "trip_id", "platform_id",
		"hour", "time", "mode", "lat", "lon", "cost", "stop_seq",
	))
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, rel := range w.relBuf {
		args := append([]interface{}{w.network, w.relSeq, int(rel.Type), rel.Start, rel.End}, propertyArgs(&rel.Properties)...)
		_, err = stmt.Exec(args...)
		if err != nil {
			return fmt.Errorf("COPY relationship: %w", err)
		}
		w.relSeq++
	}

	_, err = stmt.Exec()
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	w.relBuf = nil

	return nil
}

func (w *PSQLGraphWriter) WriteCalendar(cal *model.Calendar) error {
	mon, tue, wed, thu, fri, sat, sun := weekdayColumns(cal.Weekday)
	_, err := w.db.Exec(`
INSERT INTO calendar (network, service_id, start_date, end_date, monday, tuesday, wednesday, thursday, friday, saturday, sunday)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		w.network,
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

func (w *PSQLGraphWriter) WriteCalendarDate(cd *model.CalendarDate) error {
	_, err := w.db.Exec(`
INSERT INTO calendar_dates (network, service_id, date, exception_type)
VALUES ($1, $2, $3, $4)`,
		w.network,
		cd.ServiceID,
		cd.Date,
		cd.ExceptionType,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar_date: %w", err)
	}
	return nil
}

func (w *PSQLGraphWriter) Close() error {
	return w.EndRelationships()
}

func (r *PSQLGraphReader) Node(id string) (*Node, error) {
	node := &Node{}
	var labels int64
	dest, convert := propertyDest(&node.Properties)
	err := r.db.QueryRow(`
SELECT id, labels, `+propertyColumns+`
FROM nodes
WHERE network = $1 AND id = $2`, r.network, id).Scan(append([]interface{}{&node.ID, &labels}, dest...)...)
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

func (r *PSQLGraphReader) Outgoing(nodeID string, types ...RelationshipType) ([]*Relationship, error) {
	query := `
SELECT type, start_id, end_id, ` + propertyColumns + `
FROM relationships
WHERE network = $1 AND start_id = $2`
	params := []interface{}{r.network, nodeID}

	if len(types) > 0 {
		typeInts := make([]int64, len(types))
		for i, t := range types {
			typeInts[i] = int64(t)
		}
		query += " AND type = ANY($3)"
		params = append(params, pq.Array(typeInts))
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

func (r *PSQLGraphReader) NodesByLabel(labels Labels) ([]*Node, error) {
	if labels == 0 {
		return []*Node{}, nil
	}

	rows, err := r.db.Query(`
SELECT id, labels, `+propertyColumns+`
FROM nodes
WHERE network = $1 AND labels & $2 = $2
ORDER BY id`, r.network, int64(labels))
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

func (r *PSQLGraphReader) ActiveServices(date string) ([]string, error) {
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
        WHERE network = $1 AND
              date = $2
),
Regular AS (
        SELECT service_id
        FROM calendar
        WHERE network = $1 AND
              `+weekday+` = 1 AND
              start_date <= $2 AND
              end_date >= $2
)
SELECT service_id FROM Regular
WHERE service_id NOT IN (
	SELECT service_id FROM Exceptions WHERE exception_type = 2
)
UNION
SELECT service_id FROM Exceptions
WHERE exception_type = 1
ORDER BY service_id
`, r.network, date)
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
