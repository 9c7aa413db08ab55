package covid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	return ParseDate(s)
}

func TestWithinDates(t *testing.T) {
	t.Parallel()

	f := MapFilter{Start: day("2020-03-01"), End: day("2020-03-31")}

	tests := []struct {
		name string
		loc  HighRiskLocation
		want bool
	}{
		{name: "inside", loc: HighRiskLocation{StartDate: day("2020-03-05"), EndDate: day("2020-03-06")}, want: true},
		{name: "overlaps start", loc: HighRiskLocation{StartDate: day("2020-02-25"), EndDate: day("2020-03-01")}, want: true},
		{name: "starts after", loc: HighRiskLocation{StartDate: day("2020-04-01"), EndDate: day("2020-04-02")}, want: false},
		{name: "ends before", loc: HighRiskLocation{StartDate: day("2020-02-01"), EndDate: day("2020-02-28")}, want: false},
		{name: "missing dates", loc: HighRiskLocation{}, want: true},
		{name: "missing end", loc: HighRiskLocation{StartDate: day("2020-02-01")}, want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, f.WithinDates(tt.loc))
		})
	}
}

func TestPartitionHighRisk(t *testing.T) {
	t.Parallel()

	f := MapFilter{
		Districts: []string{"Sha Tin"},
		Start:     day("2020-01-10"),
		End:       day("2020-12-31"),
	}
	locs := []HighRiskLocation{
		{ID: "1", SubDistrictEn: "Sha Tin", StartDate: day("2020-02-01"), EndDate: day("2020-02-02")},
		{ID: "2", SubDistrictEn: "Central", StartDate: day("2020-02-01"), EndDate: day("2020-02-02")},
		{ID: "3", SubDistrictEn: "Sha Tin", StartDate: day("2021-02-01"), EndDate: day("2021-02-02")},
	}

	selected, faded := f.PartitionHighRisk(locs)

	require.Len(t, selected, 1)
	require.Len(t, faded, 2)
	assert.Equal(t, "1", selected[0].ID)
	assert.Equal(t, "2", faded[0].ID)
	assert.Equal(t, "3", faded[1].ID)
}

func TestPartitionHospitals(t *testing.T) {
	t.Parallel()

	f := MapFilter{WaitMin: 1, WaitMax: 3}
	rows := []HospitalWaiting{
		{WaitingTime: WaitingTime{HospName: "a", TopWaitValue: 0}},
		{WaitingTime: WaitingTime{HospName: "b", TopWaitValue: 1}},
		{WaitingTime: WaitingTime{HospName: "c", TopWaitValue: 3}},
		{WaitingTime: WaitingTime{HospName: "d", TopWaitValue: -1}},
	}

	selected, faded := f.PartitionHospitals(rows)

	assert.Len(t, selected, 2)
	assert.Len(t, faded, 2)
	assert.Equal(t, "b", selected[0].HospName)
	assert.Equal(t, "d", faded[1].HospName)
}

func TestShowsLayer(t *testing.T) {
	t.Parallel()

	f := MapFilter{Layers: []string{LayerHospitals}}
	assert.True(t, f.ShowsLayer(LayerHospitals))
	assert.False(t, f.ShowsLayer(LayerHighRisk))
}
