package rag

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/gamma-omg/brain-rag/apierr"
	"github.com/gamma-omg/brain-rag/docstore"
	"github.com/gamma-omg/brain-rag/llm"
)

const DefaultResults = 5

var errConsumerStopped = errors.New("consumer stopped")

// Request is one question. Streaming is chosen by calling Stream instead of
// Ask.
type Request struct {
	Question string
	History  []llm.Message
	K        int
}

type Retrieval struct {
	Matches []docstore.Match
	Sources []string
}

// Answer is the outcome of a blocking query. Failures are reported in Err
// with a printable message in Text; NoContext marks an empty retrieval,
// which is not a failure.
type Answer struct {
	Text      string
	Sources   []string
	Context   string
	NoContext bool
	Err       error
}

type DeltaKind int

const (
	DeltaText DeltaKind = iota
	DeltaSources
	DeltaError
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaText:
		return "text"
	case DeltaSources:
		return "sources"
	case DeltaError:
		return "error"
	default:
		return fmt.Sprintf("DeltaKind(%d)", int(k))
	}
}

// Delta is one streamed event. A stream ends with exactly one sources or
// error delta unless the consumer stops early.
type Delta struct {
	Kind    DeltaKind
	Text    string
	Sources []string
	Err     error
}

type Orchestrator struct {
	log             *slog.Logger
	embedder        Embedder
	store           docstore.Store
	generator       llm.Client
	defaultK        int
	maxContextChars int
}

func NewOrchestrator(embedder Embedder, store docstore.Store, generator llm.Client, defaultK, maxContextChars int, log *slog.Logger) *Orchestrator {
	if defaultK <= 0 {
		defaultK = DefaultResults
	}
	if maxContextChars <= 0 {
		maxContextChars = DefaultMaxContextChars
	}

	return &Orchestrator{
		log:             orDiscard(log),
		embedder:        embedder,
		store:           store,
		generator:       generator,
		defaultK:        defaultK,
		maxContextChars: maxContextChars,
	}
}

// Retrieve embeds the question and returns the k nearest chunks in order of
// increasing distance.
func (o *Orchestrator) Retrieve(ctx context.Context, question string, k int) (Retrieval, error) {
	if k <= 0 {
		k = o.defaultK
	}

	vecs, err := o.embedder.Embed(ctx, []string{question})
	if err != nil {
		return Retrieval{}, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(vecs) != 1 {
		return Retrieval{}, fmt.Errorf("%w: got %d vectors for the question", ErrEmbedding, len(vecs))
	}

	matches, err := o.store.Query(ctx, vecs[0], k)
	if err != nil {
		return Retrieval{}, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	return Retrieval{Matches: matches, Sources: Sources(matches)}, nil
}

// Ask answers in a single blocking generation call.
func (o *Orchestrator) Ask(ctx context.Context, req Request) Answer {
	ans, msgs, ok := o.prepare(ctx, req)
	if !ok {
		return ans
	}

	text, err := o.generator.Chat(ctx, msgs)
	if err != nil {
		return o.fail(ans, fmt.Errorf("%w: %w", ErrGeneration, err))
	}

	ans.Text = text
	return ans
}

// Stream yields text deltas as the generator produces them, then a sources
// delta. Any failure ends the stream with an error delta. Stopping the range
// loop cancels generation.
func (o *Orchestrator) Stream(ctx context.Context, req Request) iter.Seq[Delta] {
	return func(yield func(Delta) bool) {
		ans, msgs, ok := o.prepare(ctx, req)
		if !ok {
			yield(Delta{Kind: DeltaError, Text: ans.Text, Err: ans.Err})
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stopped := false
		err := o.generator.ChatStream(ctx, msgs, func(tok string) error {
			if stopped {
				return errConsumerStopped
			}
			if !yield(Delta{Kind: DeltaText, Text: tok}) {
				stopped = true
				cancel()
				return errConsumerStopped
			}
			return nil
		})
		if stopped {
			return
		}
		if err != nil {
			ans = o.fail(ans, fmt.Errorf("%w: %w", ErrGeneration, err))
			yield(Delta{Kind: DeltaError, Text: ans.Text, Err: ans.Err})
			return
		}

		yield(Delta{Kind: DeltaSources, Text: RenderSources(ans.Sources), Sources: ans.Sources})
	}
}

func (o *Orchestrator) prepare(ctx context.Context, req Request) (Answer, []llm.Message, bool) {
	var ans Answer

	ret, err := o.Retrieve(ctx, req.Question, req.K)
	if err != nil {
		return o.fail(ans, err), nil, false
	}

	var used []docstore.Match
	ans.Context, used = BuildContext(ret.Matches, o.maxContextChars)
	ans.Sources = Sources(used)
	ans.NoContext = len(ret.Matches) == 0
	if ans.NoContext {
		o.log.Info("no relevant context", slog.String("question", req.Question))
	}

	return ans, BuildMessages(ans.Context, req.Question, req.History), true
}

func (o *Orchestrator) fail(ans Answer, err error) Answer {
	o.log.Error("query failed", slog.String("kind", apierr.Kind(err)), slog.Any("error", err))

	ans.Err = err
	switch {
	case errors.Is(err, ErrEmbedding):
		ans.Text = "Error: the embedding service could not process the question: " + err.Error()
	case errors.Is(err, ErrRetrieval):
		ans.Text = "Error: the knowledge base could not be searched: " + err.Error()
	default:
		ans.Text = "Error: the answer could not be generated: " + err.Error()
	}
	return ans
}
