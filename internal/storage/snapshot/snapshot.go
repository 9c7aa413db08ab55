// Package snapshot persists whole datasets as gob blobs so the dashboard can
// start from the last good load when upstream and SQL are unavailable.
package snapshot

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/JakeFAU/hkcovid-dashboard/internal/covid"
	"github.com/JakeFAU/hkcovid-dashboard/internal/storage"
)

// SourceName identifies the snapshot cache in the loader chain.
const SourceName = "cache"

const formatVersion = 1

// DefaultObject is the blob path used when none is configured.
const DefaultObject = "dataset.gob"

// envelope is the on-disk layout.
type envelope struct {
	Version int
	SavedAt time.Time
	Dataset covid.Dataset
}

// Store reads and writes dataset snapshots through a BlobStore.
type Store struct {
	blobs  storage.BlobStore
	object string
	clock  clockwork.Clock
}

var (
	_ covid.Source      = (*Store)(nil)
	_ covid.Sink        = (*Store)(nil)
	_ covid.AddressBook = (*Store)(nil)
)

// New builds a Store writing object into blobs.
func New(blobs storage.BlobStore, object string, clock clockwork.Clock) (*Store, error) {
	if blobs == nil {
		return nil, errors.New("snapshot: blob store is required")
	}
	if object == "" {
		object = DefaultObject
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{blobs: blobs, object: object, clock: clock}, nil
}

// Name implements covid.Source.
func (s *Store) Name() string { return SourceName }

// Load decodes the last saved dataset.
func (s *Store) Load(ctx context.Context) (covid.Dataset, error) {
	env, err := s.read(ctx)
	if err != nil {
		return covid.Dataset{}, err
	}
	return env.Dataset, nil
}

// Save encodes ds and replaces the stored snapshot.
func (s *Store) Save(ctx context.Context, ds covid.Dataset) error {
	var buf bytes.Buffer
	env := envelope{Version: formatVersion, SavedAt: s.clock.Now(), Dataset: ds}
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := s.blobs.PutObject(ctx, s.object, "application/octet-stream", &buf); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// LoadAddresses returns the address book carried in the snapshot.
func (s *Store) LoadAddresses(ctx context.Context) ([]covid.Address, error) {
	env, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	return env.Dataset.Addresses, nil
}

func (s *Store) read(ctx context.Context) (envelope, error) {
	data, err := s.blobs.GetObject(ctx, s.object)
	if err != nil {
		return envelope{}, fmt.Errorf("read snapshot: %w", err)
	}
	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return envelope{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if env.Version != formatVersion {
		return envelope{}, fmt.Errorf("snapshot format version %d, want %d", env.Version, formatVersion)
	}
	return env, nil
}
