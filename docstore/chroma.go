package docstore

import (
	"context"
	"fmt"
	"io"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
)

const (
	DefaultCollection  = "brain_knowledge"
	DefaultRequestSize = 100
)

// chroma-go has no constant for it, the server accepts it in query includes.
const includeDistances chroma.Include = "distances"

var _ Store = (*ChromaStore)(nil)

// collection is the part of chroma.Collection the store relies on.
type collection interface {
	Upsert(ctx context.Context, opts ...chroma.CollectionUpdateOption) error
	Delete(ctx context.Context, opts ...chroma.CollectionDeleteOption) error
	Query(ctx context.Context, opts ...chroma.CollectionQueryOption) (chroma.QueryResult, error)
	Get(ctx context.Context, opts ...chroma.CollectionGetOption) (chroma.GetResult, error)
}

type metadataReader interface {
	GetString(key string) (string, bool)
	GetInt(key string) (int64, bool)
	GetFloat(key string) (float64, bool)
}

type ChromaStoreConfig struct {
	BaseURL    string
	Collection string
	// EmbeddingFunc is registered with the collection when set. Vectors are
	// always computed by the caller, so it is never invoked by the store.
	EmbeddingFunc embeddings.EmbeddingFunction
	RequestSize   int
	Reset         bool
}

type ChromaStore struct {
	requestSize int
	col         collection
	closer      io.Closer
}

func NewChromaStore(ctx context.Context, cfg ChromaStoreConfig) (*ChromaStore, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.RequestSize <= 0 {
		cfg.RequestSize = DefaultRequestSize
	}

	client, err := chroma.NewHTTPClient(chroma.WithBaseURL(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}

	if cfg.Reset {
		// the collection may not exist yet
		_ = client.DeleteCollection(ctx, cfg.Collection)
	}

	opts := []chroma.CreateCollectionOption{
		chroma.WithCollectionMetadataCreate(
			chroma.NewMetadata(chroma.NewStringAttribute("hnsw:space", "cosine")),
		),
	}
	if cfg.EmbeddingFunc != nil {
		opts = append(opts, chroma.WithEmbeddingFunctionCreate(cfg.EmbeddingFunc))
	}

	col, err := client.GetOrCreateCollection(ctx, cfg.Collection, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", cfg.Collection, err)
	}

	store := &ChromaStore{
		requestSize: cfg.RequestSize,
		col:         col,
	}
	if c, ok := client.(io.Closer); ok {
		store.closer = c
	}

	return store, nil
}

func (ds *ChromaStore) Upsert(ctx context.Context, entries []Entry) error {
	if err := validateEntries(entries); err != nil {
		return err
	}

	size := ds.requestSize
	if size <= 0 {
		size = DefaultRequestSize
	}

	for start := 0; start < len(entries); start += size {
		batch := entries[start:min(start+size, len(entries))]

		ids := make([]chroma.DocumentID, 0, len(batch))
		texts := make([]string, 0, len(batch))
		metas := make([]chroma.DocumentMetadata, 0, len(batch))
		embs := make([]embeddings.Embedding, 0, len(batch))
		for _, e := range batch {
			ids = append(ids, chroma.DocumentID(e.ID))
			texts = append(texts, e.Text)
			metas = append(metas, chromaMetadata(e.Meta))
			embs = append(embs, embeddings.NewEmbeddingFromFloat32(e.Vector))
		}

		err := ds.col.Upsert(ctx,
			chroma.WithIDs(ids...),
			chroma.WithTexts(texts...),
			chroma.WithMetadatas(metas...),
			chroma.WithEmbeddings(embs...),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert %d entries: %w", len(batch), err)
		}
	}

	return nil
}

func (ds *ChromaStore) DeleteWhere(ctx context.Context, filter Filter) error {
	if _, ok := metaValue(Metadata{}, filter.Key); !ok {
		return fmt.Errorf("unsupported filter key %q", filter.Key)
	}

	err := ds.col.Delete(ctx, chroma.WithWhereDelete(chroma.EqString(filter.Key, filter.Value)))
	if err != nil {
		return fmt.Errorf("failed to delete where %s=%s: %w", filter.Key, filter.Value, err)
	}

	return nil
}

func (ds *ChromaStore) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	r, err := ds.col.Query(ctx,
		chroma.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chroma.WithNResults(k),
		chroma.WithIncludeQuery(chroma.IncludeDocuments, chroma.IncludeMetadatas, includeDistances),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	ids := firstGroup(r.GetIDGroups())
	docs := firstGroup(r.GetDocumentsGroups())
	metas := firstGroup(r.GetMetadatasGroups())
	dists := firstGroup(r.GetDistancesGroups())

	res := make([]Match, 0, len(ids))
	for i := range ids {
		m := Match{ID: string(ids[i])}
		if i < len(docs) && docs[i] != nil {
			m.Text = docs[i].ContentString()
		}
		if i < len(metas) && metas[i] != nil {
			m.Meta = metadataFrom(metas[i])
		}
		if i < len(dists) {
			m.Distance = float64(dists[i])
		}
		res = append(res, m)
	}

	// the server already ranks, this only fixes tie order
	return topK(res, k), nil
}

func (ds *ChromaStore) ListMetadata(ctx context.Context) ([]Metadata, error) {
	res, err := ds.col.Get(ctx, chroma.WithIncludeGet(chroma.IncludeMetadatas))
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}

	metas := res.GetMetadatas()
	out := make([]Metadata, 0, len(metas))
	for _, meta := range metas {
		if meta == nil {
			continue
		}
		out = append(out, metadataFrom(meta))
	}

	return out, nil
}

func (ds *ChromaStore) Close() error {
	if ds.closer == nil {
		return nil
	}
	return ds.closer.Close()
}

// firstGroup returns the results for the first (and only) query vector.
func firstGroup[T any](groups []T) T {
	var zero T
	if len(groups) == 0 {
		return zero
	}
	return groups[0]
}

func chromaMetadata(m Metadata) chroma.DocumentMetadata {
	return chroma.NewDocumentMetadata(
		chroma.NewStringAttribute(KeyFilename, m.Filename),
		chroma.NewStringAttribute(KeyFingerprint, m.Fingerprint),
		chroma.NewIntAttribute(KeyOrdinal, int64(m.Ordinal)),
		chroma.NewStringAttribute(KeySource, m.Source),
		chroma.NewIntAttribute(KeyModTime, unixNano(m.ModTime)),
	)
}

func metadataFrom(meta metadataReader) Metadata {
	var m Metadata
	m.Filename, _ = meta.GetString(KeyFilename)
	m.Fingerprint, _ = meta.GetString(KeyFingerprint)
	m.Source, _ = meta.GetString(KeySource)
	m.Ordinal = int(intAttr(meta, KeyOrdinal))
	m.ModTime = fromUnixNano(intAttr(meta, KeyModTime))
	return m
}

// intAttr reads an integer attribute; numbers can come back from the
// server's JSON as floats.
func intAttr(meta metadataReader, key string) int64 {
	if v, ok := meta.GetInt(key); ok {
		return v
	}
	if v, ok := meta.GetFloat(key); ok {
		return int64(v)
	}
	return 0
}
