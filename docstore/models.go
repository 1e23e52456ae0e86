package docstore

import (
	"context"
	"time"
)

// Metadata keys shared by every backend.
const (
	KeyFilename    = "filename"
	KeyFingerprint = "fingerprint"
	KeyOrdinal     = "ordinal"
	KeySource      = "source"
	KeyModTime     = "mtime"
)

type Metadata struct {
	Filename    string
	Fingerprint string
	Ordinal     int
	Source      string
	ModTime     time.Time
}

type Entry struct {
	ID     string
	Vector []float32
	Text   string
	Meta   Metadata
}

// Match is one nearest-neighbour hit. Distance is cosine distance, lower is closer.
type Match struct {
	ID       string
	Text     string
	Meta     Metadata
	Distance float64
}

// Filter is an equality test on one metadata key.
type Filter struct {
	Key   string
	Value string
}

func FilenameIs(name string) Filter {
	return Filter{Key: KeyFilename, Value: name}
}

// Store is a persistent similarity index over chunk vectors. Implementations
// must be safe for concurrent use.
type Store interface {
	Upsert(ctx context.Context, entries []Entry) error
	DeleteWhere(ctx context.Context, filter Filter) error
	Query(ctx context.Context, vector []float32, k int) ([]Match, error)
	ListMetadata(ctx context.Context) ([]Metadata, error)
	Close() error
}
