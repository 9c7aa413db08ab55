package snapshot

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hkcovid-dashboard/internal/covid"
	"github.com/JakeFAU/hkcovid-dashboard/internal/storage"
	"github.com/JakeFAU/hkcovid-dashboard/internal/storage/memory"
)

func sampleDataset() covid.Dataset {
	lat, lng := 22.38, 114.19
	return covid.Dataset{
		Cases: []covid.Case{{CaseNo: 2, Gender: "F", Age: "30"}, {CaseNo: 1}},
		HighRisk: []covid.HighRiskLocation{
			{ID: "a", LocationEn: "Mall", StartDate: covid.ParseDate("2020-02-01"), Lat: &lat, Lng: &lng},
			{ID: "b", LocationEn: "Park"},
		},
		WaitingTimes: []covid.WaitingTime{{HospName: "QMH", TopWait: "> 2", TopWaitValue: 2}},
		Stats:        covid.DailyStats{Death: 4, Confirmed: 100},
		Addresses:    []covid.Address{{ID: "a", Latitude: &lat, Longitude: &lng}, {ID: "b"}},
		Source:       "live",
		LoadedAt:     time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSaveThenLoad(t *testing.T) {
	t.Parallel()

	store, err := New(memory.NewBlobStore(), "", clockwork.NewFakeClock())
	require.NoError(t, err)
	ds := sampleDataset()

	require.NoError(t, store.Save(context.Background(), ds))
	got, err := store.Load(context.Background())
	require.NoError(t, err)

	require.Len(t, got.Cases, 2)
	assert.Equal(t, ds.Cases, got.Cases)
	require.True(t, got.HighRisk[0].HasLocation())
	assert.InDelta(t, 22.38, *got.HighRisk[0].Lat, 1e-9)
	assert.False(t, got.HighRisk[1].HasLocation(), "nil coordinates must survive the round trip")
	assert.True(t, ds.HighRisk[0].StartDate.Equal(got.HighRisk[0].StartDate))
	assert.Equal(t, ds.Stats, got.Stats)

	book, err := store.LoadAddresses(context.Background())
	require.NoError(t, err)
	require.Len(t, book, 2)
	assert.Nil(t, book[1].Latitude)
}

func TestLoadMissingSnapshot(t *testing.T) {
	t.Parallel()

	store, err := New(memory.NewBlobStore(), "missing.gob", nil)
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestLoadCorruptSnapshot(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	_, err := blobs.PutObject(context.Background(), DefaultObject, "", bytes.NewReader([]byte("not gob")))
	require.NoError(t, err)
	store, err := New(blobs, DefaultObject, nil)
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode snapshot")
}

func TestNewRequiresBlobStore(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "", nil)
	require.Error(t, err)
}
