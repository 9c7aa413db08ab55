// Package csvfile reads and writes the dataset as a directory of CSV files,
// plus the tab-separated hospital reference table.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JakeFAU/hkcovid-dashboard/internal/covid"
)

// SourceName identifies the CSV directory in the loader chain.
const SourceName = "csv"

// File names inside the data directory.
const (
	CasesFile     = "cases.csv"
	HighRiskFile  = "high_risk.csv"
	WaitingFile   = "waiting_time.csv"
	HospitalsFile = "hospitals.tsv"
	StatsFile     = "stats.csv"
	AddressesFile = "addresses.csv"
)

var (
	caseHeader = []string{
		"case_no", "onset_date", "confirmation_date", "gender", "age",
		"hospital_zh", "hospital_en", "status", "status_zh", "type_zh", "type_en",
		"citizenship_zh", "citizenship_en", "detail_zh", "detail_en",
		"classification", "source_url",
	}
	highRiskHeader = []string{
		"id", "sub_district_zh", "sub_district_en", "location_zh", "location_en",
		"action_zh", "action_en", "remarks_en", "source_url", "case_no",
		"start_date", "end_date",
	}
	waitingHeader   = []string{"hospName", "topWait", "updatedAt"}
	hospitalHeader  = []string{"name_en", "name_zh", "address", "cluster", "latitude", "longitude"}
	statsHeader     = []string{"death", "confirmed", "investigating", "reported"}
	addressesHeader = []string{
		"id", "sub_district_zh", "sub_district_en", "location_en", "location_zh",
		"latitude", "longitude",
	}
)

// Store is a directory of CSV tables.
type Store struct {
	dir string
}

var (
	_ covid.Source      = (*Store)(nil)
	_ covid.Sink        = (*Store)(nil)
	_ covid.AddressBook = (*Store)(nil)
)

// New returns a Store rooted at dir.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("csvfile: directory is required")
	}
	return &Store{dir: dir}, nil
}

// Name implements covid.Source.
func (s *Store) Name() string { return SourceName }

// Load reads cases, high-risk locations and waiting times (required) plus the
// stats, address book and hospital reference tables when present.
func (s *Store) Load(ctx context.Context) (covid.Dataset, error) {
	var ds covid.Dataset
	var err error
	if ds.Cases, err = s.loadCases(); err != nil {
		return covid.Dataset{}, err
	}
	if ds.HighRisk, err = s.loadHighRisk(); err != nil {
		return covid.Dataset{}, err
	}
	if ds.WaitingTimes, err = s.loadWaitingTimes(); err != nil {
		return covid.Dataset{}, err
	}
	if ds.Stats, err = s.loadStats(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return covid.Dataset{}, err
	}
	if ds.Addresses, err = s.LoadAddresses(ctx); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return covid.Dataset{}, err
	}
	if ds.HospitalRefs, err = s.LoadHospitals(ctx); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return covid.Dataset{}, err
	}
	return ds, nil
}

// Save writes every table except the hospital reference, which is curated by hand.
func (s *Store) Save(ctx context.Context, ds covid.Dataset) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create csv dir: %w", err)
	}
	caseRows := make([][]string, 0, len(ds.Cases))
	for _, c := range ds.Cases {
		caseRows = append(caseRows, []string{
			strconv.Itoa(c.CaseNo), c.OnsetDate, c.ConfirmationDate, c.Gender, c.Age,
			c.HospitalZh, c.HospitalEn, c.Status, c.StatusZh, c.TypeZh, c.TypeEn,
			c.CitizenshipZh, c.CitizenshipEn, c.DetailZh, c.DetailEn,
			c.Classification, c.SourceURL,
		})
	}
	if err := s.writeTable(CasesFile, ',', caseHeader, caseRows); err != nil {
		return err
	}

	locRows := make([][]string, 0, len(ds.HighRisk))
	for _, l := range ds.HighRisk {
		locRows = append(locRows, []string{
			l.ID, l.SubDistrictZh, l.SubDistrictEn, l.LocationZh, l.LocationEn,
			l.ActionZh, l.ActionEn, l.Remarks, l.SourceURL, l.CaseNo,
			covid.FormatDate(l.StartDate), covid.FormatDate(l.EndDate),
		})
	}
	if err := s.writeTable(HighRiskFile, ',', highRiskHeader, locRows); err != nil {
		return err
	}

	waitRows := make([][]string, 0, len(ds.WaitingTimes))
	for _, w := range ds.WaitingTimes {
		waitRows = append(waitRows, []string{w.HospName, w.TopWait, w.UpdatedAt})
	}
	if err := s.writeTable(WaitingFile, ',', waitingHeader, waitRows); err != nil {
		return err
	}

	st := ds.Stats
	statRows := [][]string{{
		strconv.Itoa(st.Death), strconv.Itoa(st.Confirmed),
		strconv.Itoa(st.Investigating), strconv.Itoa(st.Reported),
	}}
	if err := s.writeTable(StatsFile, ',', statsHeader, statRows); err != nil {
		return err
	}

	return s.SaveAddresses(ctx, ds.Addresses)
}

// LoadAddresses reads the address book.
func (s *Store) LoadAddresses(_ context.Context) ([]covid.Address, error) {
	rows, err := s.readTable(AddressesFile, ',')
	if err != nil {
		return nil, err
	}
	out := make([]covid.Address, 0, len(rows))
	for i, r := range rows {
		lat, err := parseOptionalFloat(r.get("latitude"))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: latitude: %w", AddressesFile, i+2, err)
		}
		lng, err := parseOptionalFloat(r.get("longitude"))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: longitude: %w", AddressesFile, i+2, err)
		}
		out = append(out, covid.Address{
			ID:            r.get("id"),
			SubDistrictZh: r.get("sub_district_zh"),
			SubDistrictEn: r.get("sub_district_en"),
			LocationEn:    r.get("location_en"),
			LocationZh:    r.get("location_zh"),
			Latitude:      lat,
			Longitude:     lng,
		})
	}
	return out, nil
}

// SaveAddresses replaces the address book.
func (s *Store) SaveAddresses(_ context.Context, book []covid.Address) error {
	rows := make([][]string, 0, len(book))
	for _, a := range book {
		rows = append(rows, []string{
			a.ID, a.SubDistrictZh, a.SubDistrictEn, a.LocationEn, a.LocationZh,
			formatOptionalFloat(a.Latitude), formatOptionalFloat(a.Longitude),
		})
	}
	return s.writeTable(AddressesFile, ',', addressesHeader, rows)
}

// LoadHospitals reads the tab-separated hospital reference table.
func (s *Store) LoadHospitals(_ context.Context) ([]covid.Hospital, error) {
	rows, err := s.readTable(HospitalsFile, '\t')
	if err != nil {
		return nil, err
	}
	out := make([]covid.Hospital, 0, len(rows))
	for i, r := range rows {
		lat, err := strconv.ParseFloat(r.get("latitude"), 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: latitude: %w", HospitalsFile, i+2, err)
		}
		lng, err := strconv.ParseFloat(r.get("longitude"), 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: longitude: %w", HospitalsFile, i+2, err)
		}
		out = append(out, covid.Hospital{
			NameEn:    r.get("name_en"),
			NameZh:    r.get("name_zh"),
			Address:   r.get("address"),
			Cluster:   r.get("cluster"),
			Latitude:  lat,
			Longitude: lng,
		})
	}
	return out, nil
}

func (s *Store) loadCases() ([]covid.Case, error) {
	rows, err := s.readTable(CasesFile, ',')
	if err != nil {
		return nil, err
	}
	raw := make([]covid.RawCase, 0, len(rows))
	for _, r := range rows {
		raw = append(raw, covid.RawCase{
			CaseNo:           covid.LooseString(r.get("case_no")),
			OnsetDate:        r.get("onset_date"),
			ConfirmationDate: r.get("confirmation_date"),
			Gender:           r.get("gender"),
			Age:              covid.LooseString(r.get("age")),
			HospitalZh:       r.get("hospital_zh"),
			HospitalEn:       r.get("hospital_en"),
			Status:           r.get("status"),
			StatusZh:         r.get("status_zh"),
			TypeZh:           r.get("type_zh"),
			TypeEn:           r.get("type_en"),
			CitizenshipZh:    r.get("citizenship_zh"),
			CitizenshipEn:    r.get("citizenship_en"),
			DetailZh:         r.get("detail_zh"),
			DetailEn:         r.get("detail_en"),
			Classification:   r.get("classification"),
			SourceURL:        r.get("source_url"),
		})
	}
	cases, _ := covid.NormalizeCases(raw)
	return cases, nil
}

func (s *Store) loadHighRisk() ([]covid.HighRiskLocation, error) {
	rows, err := s.readTable(HighRiskFile, ',')
	if err != nil {
		return nil, err
	}
	raw := make([]covid.RawHighRisk, 0, len(rows))
	for _, r := range rows {
		loc := covid.RawHighRisk{
			ID:            r.get("id"),
			SubDistrictZh: r.get("sub_district_zh"),
			SubDistrictEn: r.get("sub_district_en"),
			LocationZh:    r.get("location_zh"),
			LocationEn:    r.get("location_en"),
			ActionZh:      r.get("action_zh"),
			ActionEn:      r.get("action_en"),
			Remarks:       r.get("remarks_en"),
			SourceURL:     r.get("source_url"),
			StartDate:     r.get("start_date"),
			EndDate:       r.get("end_date"),
		}
		if no := r.get("case_no"); no != "" {
			loc.Case = &covid.RawCaseRef{CaseNo: covid.LooseString(no)}
		}
		raw = append(raw, loc)
	}
	return covid.NormalizeHighRisk(raw), nil
}

func (s *Store) loadWaitingTimes() ([]covid.WaitingTime, error) {
	rows, err := s.readTable(WaitingFile, ',')
	if err != nil {
		return nil, err
	}
	out := make([]covid.WaitingTime, 0, len(rows))
	for _, r := range rows {
		out = append(out, covid.WaitingTime{
			HospName:  r.get("hospName"),
			TopWait:   r.get("topWait"),
			UpdatedAt: r.get("updatedAt"),
		})
	}
	return covid.NormalizeWaitingTimes(out), nil
}

func (s *Store) loadStats() (covid.DailyStats, error) {
	rows, err := s.readTable(StatsFile, ',')
	if err != nil {
		return covid.DailyStats{}, err
	}
	if len(rows) == 0 {
		return covid.DailyStats{}, nil
	}
	// The last row is the most recent snapshot.
	r := rows[len(rows)-1]
	var st covid.DailyStats
	for _, f := range []struct {
		col string
		dst *int
	}{
		{"death", &st.Death},
		{"confirmed", &st.Confirmed},
		{"investigating", &st.Investigating},
		{"reported", &st.Reported},
	} {
		n, err := strconv.Atoi(strings.ReplaceAll(r.get(f.col), ",", ""))
		if err != nil {
			return covid.DailyStats{}, fmt.Errorf("%s: %s: %w", StatsFile, f.col, err)
		}
		*f.dst = n
	}
	return st, nil
}

// record maps header names to one row's values.
type record map[string]string

func (r record) get(col string) string {
	return strings.TrimSpace(r[col])
}

func (s *Store) readTable(name string, comma rune) ([]record, error) {
	path := filepath.Join(s.dir, name)
	// #nosec G304 -- file names are package constants under the configured dir.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", name, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var out []record
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		rec := make(record, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// writeTable replaces name atomically.
func (s *Store) writeTable(name string, comma rune, header []string, rows [][]string) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create csv dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	tmpName := tmp.Name()
	w := csv.NewWriter(tmp)
	w.Comma = comma
	if err := w.Write(header); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s header: %w", name, err)
	}
	if err := w.WriteAll(rows); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func parseOptionalFloat(raw string) (*float64, error) {
	if raw == "" || strings.EqualFold(raw, "nan") {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func formatOptionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
