package docstore

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrDimensionMismatch means stored vectors were produced by a different
// embedding model than the query. The store has to be reset and rebuilt.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

func cosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: query has %d dimensions, stored vector has %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}

	if na == 0 || nb == 0 {
		return 1, nil
	}

	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), nil
}

// topK sorts matches by ascending distance (ties by id) and keeps the first k.
func topK(matches []Match, k int) []Match {
	slices.SortFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if k < len(matches) {
		matches = matches[:k]
	}

	return matches
}

func validateEntries(entries []Entry) error {
	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("entry for %s has an empty id", e.Meta.Filename)
		}
		if len(e.Vector) == 0 {
			return fmt.Errorf("entry %s has no vector", e.ID)
		}
	}

	return nil
}

func metaValue(m Metadata, key string) (string, bool) {
	switch key {
	case KeyFilename:
		return m.Filename, true
	case KeyFingerprint:
		return m.Fingerprint, true
	case KeySource:
		return m.Source, true
	default:
		return "", false
	}
}
