// Package postgres provides the Postgres-backed dataset store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/hkcovid-dashboard/internal/covid"
)

// SourceName identifies the SQL store in the loader chain.
const SourceName = "sql"

// Schema creates the tables the store reads and writes.
const Schema = `
CREATE TABLE IF NOT EXISTS cases (
	case_no           INTEGER PRIMARY KEY,
	onset_date        TEXT NOT NULL DEFAULT '',
	confirmation_date TEXT NOT NULL DEFAULT '',
	gender            TEXT NOT NULL DEFAULT '',
	age               TEXT NOT NULL DEFAULT '',
	hospital_zh       TEXT NOT NULL DEFAULT '',
	hospital_en       TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT '',
	status_zh         TEXT NOT NULL DEFAULT '',
	type_zh           TEXT NOT NULL DEFAULT '',
	type_en           TEXT NOT NULL DEFAULT '',
	citizenship_zh    TEXT NOT NULL DEFAULT '',
	citizenship_en    TEXT NOT NULL DEFAULT '',
	detail_zh         TEXT NOT NULL DEFAULT '',
	detail_en         TEXT NOT NULL DEFAULT '',
	classification    TEXT NOT NULL DEFAULT '',
	source_url        TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS high_risk_locations (
	id              TEXT NOT NULL,
	sub_district_zh TEXT NOT NULL DEFAULT '',
	sub_district_en TEXT NOT NULL DEFAULT '',
	location_zh     TEXT NOT NULL DEFAULT '',
	location_en     TEXT NOT NULL DEFAULT '',
	action_zh       TEXT NOT NULL DEFAULT '',
	action_en       TEXT NOT NULL DEFAULT '',
	remarks_en      TEXT NOT NULL DEFAULT '',
	source_url      TEXT NOT NULL DEFAULT '',
	case_no         TEXT NOT NULL DEFAULT '',
	start_date      DATE,
	end_date        DATE
);
CREATE TABLE IF NOT EXISTS waiting_times (
	hosp_name  TEXT NOT NULL,
	top_wait   TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS hospitals (
	name_en   TEXT PRIMARY KEY,
	name_zh   TEXT NOT NULL DEFAULT '',
	address   TEXT NOT NULL DEFAULT '',
	cluster   TEXT NOT NULL DEFAULT '',
	latitude  DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL
);
CREATE TABLE IF NOT EXISTS daily_stats (
	fetched_at    TIMESTAMPTZ NOT NULL,
	death         INTEGER NOT NULL,
	confirmed     INTEGER NOT NULL,
	investigating INTEGER NOT NULL,
	reported      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS addresses (
	id              TEXT PRIMARY KEY,
	sub_district_zh TEXT NOT NULL DEFAULT '',
	sub_district_en TEXT NOT NULL DEFAULT '',
	location_en     TEXT NOT NULL DEFAULT '',
	location_zh     TEXT NOT NULL DEFAULT '',
	latitude        DOUBLE PRECISION,
	longitude       DOUBLE PRECISION
);
`

var (
	caseColumns = []string{
		"case_no", "onset_date", "confirmation_date", "gender", "age",
		"hospital_zh", "hospital_en", "status", "status_zh", "type_zh", "type_en",
		"citizenship_zh", "citizenship_en", "detail_zh", "detail_en",
		"classification", "source_url",
	}
	highRiskColumns = []string{
		"id", "sub_district_zh", "sub_district_en", "location_zh", "location_en",
		"action_zh", "action_en", "remarks_en", "source_url", "case_no",
		"start_date", "end_date",
	}
	waitingColumns = []string{"hosp_name", "top_wait", "updated_at"}
	addressColumns = []string{
		"id", "sub_district_zh", "sub_district_en", "location_en", "location_zh",
		"latitude", "longitude",
	}
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Store reads and writes datasets in Postgres.
type Store struct {
	pool dbPool
}

var (
	_ covid.Source      = (*Store)(nil)
	_ covid.Sink        = (*Store)(nil)
	_ covid.AddressBook = (*Store)(nil)
)

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool dbPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Name implements covid.Source.
func (s *Store) Name() string { return SourceName }

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Load reads every table. A store without stats rows yields zero counters.
func (s *Store) Load(ctx context.Context) (covid.Dataset, error) {
	var ds covid.Dataset
	var err error
	if ds.Cases, err = s.loadCases(ctx); err != nil {
		return covid.Dataset{}, err
	}
	if ds.HighRisk, err = s.loadHighRisk(ctx); err != nil {
		return covid.Dataset{}, err
	}
	if ds.WaitingTimes, err = s.loadWaitingTimes(ctx); err != nil {
		return covid.Dataset{}, err
	}
	if ds.HospitalRefs, err = s.loadHospitals(ctx); err != nil {
		return covid.Dataset{}, err
	}
	if ds.Stats, err = s.loadStats(ctx); err != nil {
		return covid.Dataset{}, err
	}
	if ds.Addresses, err = s.LoadAddresses(ctx); err != nil {
		return covid.Dataset{}, err
	}
	return ds, nil
}

func (s *Store) loadCases(ctx context.Context) ([]covid.Case, error) {
	rows, err := s.pool.Query(ctx, `SELECT case_no, onset_date, confirmation_date, gender, age,
	hospital_zh, hospital_en, status, status_zh, type_zh, type_en,
	citizenship_zh, citizenship_en, detail_zh, detail_en, classification, source_url
FROM cases ORDER BY case_no DESC`)
	if err != nil {
		return nil, fmt.Errorf("query cases: %w", err)
	}
	defer rows.Close()
	var out []covid.Case
	for rows.Next() {
		var c covid.Case
		if err := rows.Scan(
			&c.CaseNo, &c.OnsetDate, &c.ConfirmationDate, &c.Gender, &c.Age,
			&c.HospitalZh, &c.HospitalEn, &c.Status, &c.StatusZh, &c.TypeZh, &c.TypeEn,
			&c.CitizenshipZh, &c.CitizenshipEn, &c.DetailZh, &c.DetailEn, &c.Classification, &c.SourceURL,
		); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return out, nil
}

func (s *Store) loadHighRisk(ctx context.Context) ([]covid.HighRiskLocation, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, sub_district_zh, sub_district_en, location_zh, location_en,
	action_zh, action_en, remarks_en, source_url, case_no, start_date, end_date
FROM high_risk_locations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query high risk locations: %w", err)
	}
	defer rows.Close()
	var out []covid.HighRiskLocation
	for rows.Next() {
		var (
			l          covid.HighRiskLocation
			start, end *time.Time
		)
		if err := rows.Scan(
			&l.ID, &l.SubDistrictZh, &l.SubDistrictEn, &l.LocationZh, &l.LocationEn,
			&l.ActionZh, &l.ActionEn, &l.Remarks, &l.SourceURL, &l.CaseNo, &start, &end,
		); err != nil {
			return nil, fmt.Errorf("scan high risk location: %w", err)
		}
		if start != nil {
			l.StartDate = *start
		}
		if end != nil {
			l.EndDate = *end
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate high risk locations: %w", err)
	}
	return out, nil
}

func (s *Store) loadWaitingTimes(ctx context.Context) ([]covid.WaitingTime, error) {
	rows, err := s.pool.Query(ctx, `SELECT hosp_name, top_wait, updated_at FROM waiting_times ORDER BY hosp_name`)
	if err != nil {
		return nil, fmt.Errorf("query waiting times: %w", err)
	}
	defer rows.Close()
	var out []covid.WaitingTime
	for rows.Next() {
		var w covid.WaitingTime
		if err := rows.Scan(&w.HospName, &w.TopWait, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan waiting time: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate waiting times: %w", err)
	}
	return covid.NormalizeWaitingTimes(out), nil
}

func (s *Store) loadHospitals(ctx context.Context) ([]covid.Hospital, error) {
	rows, err := s.pool.Query(ctx, `SELECT name_en, name_zh, address, cluster, latitude, longitude FROM hospitals ORDER BY name_en`)
	if err != nil {
		return nil, fmt.Errorf("query hospitals: %w", err)
	}
	defer rows.Close()
	var out []covid.Hospital
	for rows.Next() {
		var h covid.Hospital
		if err := rows.Scan(&h.NameEn, &h.NameZh, &h.Address, &h.Cluster, &h.Latitude, &h.Longitude); err != nil {
			return nil, fmt.Errorf("scan hospital: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hospitals: %w", err)
	}
	return out, nil
}

func (s *Store) loadStats(ctx context.Context) (covid.DailyStats, error) {
	var st covid.DailyStats
	err := s.pool.QueryRow(ctx, `SELECT fetched_at, death, confirmed, investigating, reported
FROM daily_stats ORDER BY fetched_at DESC LIMIT 1`).
		Scan(&st.FetchedAt, &st.Death, &st.Confirmed, &st.Investigating, &st.Reported)
	if errors.Is(err, pgx.ErrNoRows) {
		return covid.DailyStats{}, nil
	}
	if err != nil {
		return covid.DailyStats{}, fmt.Errorf("query daily stats: %w", err)
	}
	return st, nil
}

// LoadAddresses reads the address book.
func (s *Store) LoadAddresses(ctx context.Context) ([]covid.Address, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, sub_district_zh, sub_district_en, location_en, location_zh, latitude, longitude
FROM addresses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query addresses: %w", err)
	}
	defer rows.Close()
	var out []covid.Address
	for rows.Next() {
		var a covid.Address
		if err := rows.Scan(&a.ID, &a.SubDistrictZh, &a.SubDistrictEn, &a.LocationEn, &a.LocationZh, &a.Latitude, &a.Longitude); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate addresses: %w", err)
	}
	return out, nil
}

// Save replaces the case, high-risk and waiting-time tables, appends a stats
// row and replaces the address book, all in one transaction. The hospital
// reference table is curated separately and left untouched.
func (s *Store) Save(ctx context.Context, ds covid.Dataset) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	if err := s.saveTx(ctx, tx, ds); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func (s *Store) saveTx(ctx context.Context, tx pgx.Tx, ds covid.Dataset) error {
	if _, err := tx.Exec(ctx, `TRUNCATE cases, high_risk_locations, waiting_times`); err != nil {
		return fmt.Errorf("truncate dataset tables: %w", err)
	}

	caseRows := make([][]any, 0, len(ds.Cases))
	for _, c := range ds.Cases {
		caseRows = append(caseRows, []any{
			c.CaseNo, c.OnsetDate, c.ConfirmationDate, c.Gender, c.Age,
			c.HospitalZh, c.HospitalEn, c.Status, c.StatusZh, c.TypeZh, c.TypeEn,
			c.CitizenshipZh, c.CitizenshipEn, c.DetailZh, c.DetailEn, c.Classification, c.SourceURL,
		})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"cases"}, caseColumns, pgx.CopyFromRows(caseRows)); err != nil {
		return fmt.Errorf("copy cases: %w", err)
	}

	locRows := make([][]any, 0, len(ds.HighRisk))
	for _, l := range ds.HighRisk {
		locRows = append(locRows, []any{
			l.ID, l.SubDistrictZh, l.SubDistrictEn, l.LocationZh, l.LocationEn,
			l.ActionZh, l.ActionEn, l.Remarks, l.SourceURL, l.CaseNo,
			nullableDate(l.StartDate), nullableDate(l.EndDate),
		})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"high_risk_locations"}, highRiskColumns, pgx.CopyFromRows(locRows)); err != nil {
		return fmt.Errorf("copy high risk locations: %w", err)
	}

	waitRows := make([][]any, 0, len(ds.WaitingTimes))
	for _, w := range ds.WaitingTimes {
		waitRows = append(waitRows, []any{w.HospName, w.TopWait, w.UpdatedAt})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"waiting_times"}, waitingColumns, pgx.CopyFromRows(waitRows)); err != nil {
		return fmt.Errorf("copy waiting times: %w", err)
	}

	st := ds.Stats
	fetchedAt := st.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = ds.LoadedAt
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO daily_stats (fetched_at, death, confirmed, investigating, reported) VALUES ($1,$2,$3,$4,$5)`,
		fetchedAt, st.Death, st.Confirmed, st.Investigating, st.Reported,
	); err != nil {
		return fmt.Errorf("insert daily stats: %w", err)
	}

	return replaceAddresses(ctx, tx, ds.Addresses)
}

// SaveAddresses replaces the address book in its own transaction.
func (s *Store) SaveAddresses(ctx context.Context, book []covid.Address) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save addresses: %w", err)
	}
	if err := replaceAddresses(ctx, tx, book); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save addresses: %w", err)
	}
	return nil
}

func replaceAddresses(ctx context.Context, tx pgx.Tx, book []covid.Address) error {
	if _, err := tx.Exec(ctx, `TRUNCATE addresses`); err != nil {
		return fmt.Errorf("truncate addresses: %w", err)
	}
	rows := make([][]any, 0, len(book))
	for _, a := range book {
		rows = append(rows, []any{a.ID, a.SubDistrictZh, a.SubDistrictEn, a.LocationEn, a.LocationZh, a.Latitude, a.Longitude})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"addresses"}, addressColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy addresses: %w", err)
	}
	return nil
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
