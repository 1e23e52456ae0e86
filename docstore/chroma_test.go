package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCollection struct {
	mock.Mock
}

func (m *mockCollection) Upsert(ctx context.Context, opts ...chroma.CollectionUpdateOption) error {
	return m.Called(ctx, opts).Error(0)
}

func (m *mockCollection) Delete(ctx context.Context, opts ...chroma.CollectionDeleteOption) error {
	return m.Called(ctx, opts).Error(0)
}

func (m *mockCollection) Query(ctx context.Context, opts ...chroma.CollectionQueryOption) (chroma.QueryResult, error) {
	args := m.Called(ctx, opts)
	r, _ := args.Get(0).(chroma.QueryResult)
	return r, args.Error(1)
}

func (m *mockCollection) Get(ctx context.Context, opts ...chroma.CollectionGetOption) (chroma.GetResult, error) {
	args := m.Called(ctx, opts)
	r, _ := args.Get(0).(chroma.GetResult)
	return r, args.Error(1)
}

type floatMetadata map[string]float64

func (m floatMetadata) GetString(key string) (string, bool) { return "", false }
func (m floatMetadata) GetInt(key string) (int64, bool)     { return 0, false }
func (m floatMetadata) GetFloat(key string) (float64, bool) {
	v, ok := m[key]
	return v, ok
}

func Test_ChromaStore_Upsert(t *testing.T) {
	col := new(mockCollection)
	store := ChromaStore{requestSize: 10, col: col}

	col.On("Upsert", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, store.Upsert(context.Background(), []Entry{
		entry("facts.md#0", "facts.md", "abc", 0, 1, 2),
	}))
	col.AssertExpectations(t)
}

func Test_ChromaStore_Upsert_SplitsToBuckets(t *testing.T) {
	col := new(mockCollection)
	store := ChromaStore{requestSize: 2, col: col}

	col.On("Upsert", mock.Anything, mock.Anything).Return(nil).Times(3)

	var entries []Entry
	for i, word := range []string{"Bananas", "are", "berries", "but", "strawberries"} {
		entries = append(entries, entry(word, "facts.md", "abc", i, 1))
	}

	require.NoError(t, store.Upsert(context.Background(), entries))
	col.AssertExpectations(t)
}

func Test_ChromaStore_Upsert_Error(t *testing.T) {
	col := new(mockCollection)
	store := ChromaStore{requestSize: 10, col: col}

	col.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("boom"))

	err := store.Upsert(context.Background(), []Entry{entry("a#0", "a.md", "f", 0, 1)})
	assert.ErrorContains(t, err, "boom")
}

func Test_ChromaStore_DeleteWhere(t *testing.T) {
	col := new(mockCollection)
	store := ChromaStore{col: col}

	col.On("Delete", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, store.DeleteWhere(context.Background(), FilenameIs("f1.md")))
	assert.Error(t, store.DeleteWhere(context.Background(), Filter{Key: "text", Value: "x"}))
	col.AssertExpectations(t)
}

func Test_ChromaStore_Query(t *testing.T) {
	col := new(mockCollection)
	store := ChromaStore{col: col}

	qr := &chroma.QueryResultImpl{
		IDLists: []chroma.DocumentIDs{{"b.md#1@f2", "a.md#0@f1"}},
		DocumentsLists: []chroma.Documents{{
			chroma.NewTextDocument("pears are green"),
			chroma.NewTextDocument("apples are red"),
		}},
		MetadatasLists: []chroma.DocumentMetadatas{{
			chromaMetadata(Metadata{Filename: "b.md", Fingerprint: "f2", Ordinal: 1, Source: "/vault/b.md"}),
			chromaMetadata(Metadata{Filename: "a.md", Fingerprint: "f1", Ordinal: 0, Source: "/vault/a.md"}),
		}},
		DistancesLists: []embeddings.Distances{{0.4, 0.1}},
	}

	var op chroma.CollectionQueryOp
	col.On("Query", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		for _, opt := range args.Get(1).([]chroma.CollectionQueryOption) {
			require.NoError(t, opt(&op))
		}
	}).Return(qr, nil).Once()

	res, err := store.Query(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.Equal(t, 2, op.NResults)
	assert.Contains(t, op.Include, includeDistances)

	assert.Equal(t, "a.md#0@f1", res[0].ID)
	assert.Equal(t, "apples are red", res[0].Text)
	assert.Equal(t, "a.md", res[0].Meta.Filename)
	assert.Equal(t, "f1", res[0].Meta.Fingerprint)
	assert.Equal(t, "/vault/a.md", res[0].Meta.Source)
	assert.InDelta(t, 0.1, res[0].Distance, 1e-6)

	assert.Equal(t, "b.md#1@f2", res[1].ID)
	assert.Equal(t, 1, res[1].Meta.Ordinal)
	assert.InDelta(t, 0.4, res[1].Distance, 1e-6)
	col.AssertExpectations(t)
}

func Test_ChromaStore_QueryError(t *testing.T) {
	col := new(mockCollection)
	store := ChromaStore{col: col}

	col.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("down"))

	_, err := store.Query(context.Background(), []float32{1}, 3)
	assert.ErrorContains(t, err, "down")

	res, err := store.Query(context.Background(), []float32{1}, 0)
	require.NoError(t, err)
	assert.Empty(t, res)
	col.AssertNumberOfCalls(t, "Query", 1)
}

func Test_ChromaStore_ListMetadataError(t *testing.T) {
	col := new(mockCollection)
	store := ChromaStore{col: col}

	col.On("Get", mock.Anything, mock.Anything).Return(nil, errors.New("down"))

	_, err := store.ListMetadata(context.Background())
	assert.ErrorContains(t, err, "down")
}

func Test_metadataRoundTrip(t *testing.T) {
	mtime := time.Unix(1700000000, 0)
	in := Metadata{
		Filename:    "notes/facts.md",
		Fingerprint: "0123456789abcdef",
		Ordinal:     7,
		Source:      "/vault/notes/facts.md",
		ModTime:     mtime,
	}

	out := metadataFrom(chromaMetadata(in))
	assert.Equal(t, in.Filename, out.Filename)
	assert.Equal(t, in.Fingerprint, out.Fingerprint)
	assert.Equal(t, in.Ordinal, out.Ordinal)
	assert.Equal(t, in.Source, out.Source)
	assert.True(t, mtime.Equal(out.ModTime))
}

func Test_intAttr_FloatFallback(t *testing.T) {
	meta := floatMetadata{KeyOrdinal: 12}
	assert.Equal(t, int64(12), intAttr(meta, KeyOrdinal))
	assert.Equal(t, int64(0), intAttr(meta, KeyModTime))
}
