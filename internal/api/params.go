package api

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/JakeFAU/hkcovid-dashboard/internal/covid"
	"github.com/JakeFAU/hkcovid-dashboard/internal/dashboard"
)

// Sentinel query values.
const (
	valueAll  = "all"
	valueNone = "none"
)

var errBadParam = errors.New("invalid query parameter")

// parseFilter reads the map filter from query parameters. Absent parameters
// keep the values of dashboard.DefaultFilter.
func (s *Server) parseFilter(q url.Values, ds covid.Dataset) (covid.MapFilter, error) {
	f := dashboard.DefaultFilter(ds, s.clock.Now().In(s.loc), s.defaultStart)

	if layers, ok := q["layers"]; ok {
		f.Layers = []string{}
		for _, l := range layers {
			switch l {
			case covid.LayerHighRisk, covid.LayerHospitals:
				f.Layers = append(f.Layers, l)
			case valueNone, "":
			default:
				return covid.MapFilter{}, fmt.Errorf("%w: layers=%q", errBadParam, l)
			}
		}
	}

	var err error
	if f.WaitMin, err = intParam(q, "wait_min", 0); err != nil {
		return covid.MapFilter{}, err
	}
	if f.WaitMax, err = intParam(q, "wait_max", 0); err != nil {
		return covid.MapFilter{}, err
	}
	if f.WaitMin > f.WaitMax {
		return covid.MapFilter{}, fmt.Errorf("%w: wait_min must not exceed wait_max", errBadParam)
	}

	if f.Start, err = dateParam(q, "start", f.Start); err != nil {
		return covid.MapFilter{}, err
	}
	if f.End, err = dateParam(q, "end", f.End); err != nil {
		return covid.MapFilter{}, err
	}
	if f.Start.After(f.End) {
		return covid.MapFilter{}, fmt.Errorf("%w: start must not be after end", errBadParam)
	}

	switch mode := q.Get("districts"); {
	case mode == valueNone:
		f.Districts = []string{}
	case len(q["district"]) > 0:
		f.Districts = q["district"]
	case mode != "" && mode != valueAll:
		return covid.MapFilter{}, fmt.Errorf("%w: districts=%q", errBadParam, mode)
	}
	return f, nil
}

func intParam(q url.Values, key string, def int) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s=%q", errBadParam, key, raw)
	}
	return v, nil
}

func dateParam(q url.Values, key string, def time.Time) (time.Time, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	t, err := time.Parse(covid.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s=%q", errBadParam, key, raw)
	}
	return t, nil
}
