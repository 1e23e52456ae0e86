package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gamma-omg/brain-rag/apierr"
	"github.com/gamma-omg/brain-rag/docstore"
)

const DefaultWorkers = 4

type Indexer struct {
	log      *slog.Logger
	scanner  *Scanner
	splitter *Splitter
	embedder Embedder
	store    docstore.Store
	reader   TextReader
	workers  int
}

// Failure is a document that could not be indexed during a pass.
type Failure struct {
	Name string
	Err  error
}

// Report summarizes one sync pass. Chunks counts chunks written for added and
// updated documents.
type Report struct {
	Chunks  int
	Added   []string
	Updated []string
	Skipped []string
	Deleted []string
	Failed  []Failure
}

func NewIndexer(scanner *Scanner, splitter *Splitter, embedder Embedder, store docstore.Store, reader TextReader, workers int, log *slog.Logger) *Indexer {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	return &Indexer{
		log:      orDiscard(log),
		scanner:  scanner,
		splitter: splitter,
		embedder: embedder,
		store:    store,
		reader:   reader,
		workers:  workers,
	}
}

// Sync runs one incremental pass over root. A missing root is reported as
// ErrNoCorpus before the store is touched. Per-document failures are logged
// and listed in the report without aborting the pass.
func (idx *Indexer) Sync(ctx context.Context, root string) (Report, error) {
	var rep Report

	scan, err := idx.scanner.Scan(ctx, root)
	if err != nil {
		return rep, err
	}

	metas, err := idx.store.ListMetadata(ctx)
	if err != nil {
		return rep, fmt.Errorf("failed to list indexed documents: %w", err)
	}

	plan := Diff(scan.Documents, Recorded(metas))
	idx.log.Info("index plan",
		slog.Int("add", len(plan.Add)),
		slog.Int("update", len(plan.Update)),
		slog.Int("skip", len(plan.Skip)),
		slog.Int("delete", len(plan.Delete)))

	for _, d := range plan.Skip {
		rep.Skipped = append(rep.Skipped, d.Name)
	}

	var mu sync.Mutex
	updates := make(map[string]struct{}, len(plan.Update))
	for _, d := range plan.Update {
		updates[d.Name] = struct{}{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)

	for _, doc := range plan.Work() {
		_, update := updates[doc.Name]
		g.Go(func() error {
			n, err := idx.indexDocument(gctx, doc, update)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				idx.log.Error("failed to index document",
					slog.String("file", doc.Name),
					slog.String("kind", apierr.Kind(err)),
					slog.Any("error", err))
				rep.Failed = append(rep.Failed, Failure{Name: doc.Name, Err: err})
				return nil
			}

			rep.Chunks += n
			if update {
				rep.Updated = append(rep.Updated, doc.Name)
			} else {
				rep.Added = append(rep.Added, doc.Name)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return rep, err
	}
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	for _, name := range plan.Delete {
		if err := idx.store.DeleteWhere(ctx, docstore.FilenameIs(name)); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return rep, err
			}
			idx.log.Error("failed to remove stale document", slog.String("file", name), slog.Any("error", err))
			rep.Failed = append(rep.Failed, Failure{Name: name, Err: err})
			continue
		}
		idx.log.Debug("removed stale document", slog.String("file", name))
		rep.Deleted = append(rep.Deleted, name)
	}

	slices.Sort(rep.Added)
	slices.Sort(rep.Updated)
	slices.SortFunc(rep.Failed, func(a, b Failure) int {
		return strings.Compare(a.Name, b.Name)
	})

	return rep, nil
}

// indexDocument embeds before deleting the previous revision so an embedding
// failure leaves the old chunks searchable.
func (idx *Indexer) indexDocument(ctx context.Context, doc Document, update bool) (int, error) {
	text, err := idx.reader.ReadText(doc.Path, doc.Raw)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", doc.Name, err)
	}

	chunks := idx.splitter.Split(text)

	var vecs [][]float32
	if len(chunks) > 0 {
		vecs, err = idx.embedder.Embed(ctx, chunks)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrEmbedding, doc.Name, err)
		}
		if len(vecs) != len(chunks) {
			return 0, fmt.Errorf("%w: %s: got %d vectors for %d chunks", ErrEmbedding, doc.Name, len(vecs), len(chunks))
		}
	}

	if update {
		if err := idx.store.DeleteWhere(ctx, docstore.FilenameIs(doc.Name)); err != nil {
			return 0, fmt.Errorf("failed to remove previous chunks of %s: %w", doc.Name, err)
		}
	}

	if len(chunks) == 0 {
		idx.log.Debug("document has no text", slog.String("file", doc.Name))
		return 0, nil
	}

	entries := make([]docstore.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = docstore.Entry{
			ID:     ChunkID(doc.Name, i, doc.Fingerprint),
			Vector: vecs[i],
			Text:   c,
			Meta: docstore.Metadata{
				Filename:    doc.Name,
				Fingerprint: doc.Fingerprint,
				Ordinal:     i,
				Source:      doc.Path,
				ModTime:     doc.ModTime,
			},
		}
	}

	if err := idx.store.Upsert(ctx, entries); err != nil {
		return 0, fmt.Errorf("failed to store %s: %w", doc.Name, err)
	}

	idx.log.Debug("indexed document", slog.String("file", doc.Name), slog.Int("chunks", len(chunks)))
	return len(chunks), nil
}
