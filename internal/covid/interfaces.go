package covid

import (
	"context"
	"time"
)

// Fetcher retrieves the live datasets from the upstream site.
type Fetcher interface {
	FetchCases(ctx context.Context) ([]Case, error)
	FetchHighRisk(ctx context.Context) ([]HighRiskLocation, error)
	FetchWaitingTimes(ctx context.Context) ([]WaitingTime, error)
	FetchStats(ctx context.Context) (DailyStats, error)
}

// Source produces a complete Dataset, possibly from a fallback store.
type Source interface {
	Name() string
	Load(ctx context.Context) (Dataset, error)
}

// Sink persists a Dataset so later fallbacks can serve it.
type Sink interface {
	Name() string
	Save(ctx context.Context, ds Dataset) error
}

// AddressBook reads the cached coordinates of high-risk locations.
type AddressBook interface {
	LoadAddresses(ctx context.Context) ([]Address, error)
}

// Publisher pushes refresh notifications to subscribers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests of JSON-encodable values for change detection.
type Hasher interface {
	Digest(v any) (string, error)
}

// IDGenerator produces identifiers for refresh events stamped with the load
// time of the dataset they announce.
type IDGenerator interface {
	NewID(at time.Time) (string, error)
}
