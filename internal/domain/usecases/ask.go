package usecases

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/erkebulan/ustazai/internal/domain/entities"
	"github.com/erkebulan/ustazai/internal/domain/normalizer"
	"github.com/erkebulan/ustazai/internal/domain/parser"
	"github.com/erkebulan/ustazai/internal/domain/ports"
)

// Recorder counts pipeline events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	CacheHit()
	CacheMiss()
	ModelCall()
	ModelFailure()
	ParserFallback()
	DocumentsIngested(n int)
}

// nopRecorder is the default when no metrics backend is wired.
type nopRecorder struct{}

func (nopRecorder) CacheHit()             {}
func (nopRecorder) CacheMiss()            {}
func (nopRecorder) ModelCall()            {}
func (nopRecorder) ModelFailure()         {}
func (nopRecorder) ParserFallback()       {}
func (nopRecorder) DocumentsIngested(int) {}

// historyWindow caps how many prior turns are sent to the model.
const historyWindow = 20

type requestIDKey struct{}

// WithRequestID attaches a transport-level request identifier to the context.
// Query log entries written during the request carry it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Engine composes the question pipeline: normalize, cache lookup, context
// retrieval, generation, parsing, policy, cache store. It is the single
// entry point the conversational layer talks to.
type Engine struct {
	retriever *Retriever
	cache     *CacheGate
	model     ports.ModelClient
	convs     ports.ConversationStore
	queryLog  ports.QueryLog
	metrics   Recorder
	log       *zap.Logger
}

// NewEngine wires the pipeline. convs, queryLog and metrics may be nil.
func NewEngine(
	retriever *Retriever,
	cache *CacheGate,
	model ports.ModelClient,
	convs ports.ConversationStore,
	queryLog ports.QueryLog,
	metrics Recorder,
	log *zap.Logger,
) *Engine {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		retriever: retriever,
		cache:     cache,
		model:     model,
		convs:     convs,
		queryLog:  queryLog,
		metrics:   metrics,
		log:       log,
	}
}

// SearchCache looks up a memoized answer for the question. Returns nil on a
// miss. Exposed for the conversational layer; the full pipeline applies the
// gating policy itself.
func (e *Engine) SearchCache(ctx context.Context, question string) (*entities.CacheHit, error) {
	normalized := normalizer.Normalize(question)
	if normalized == "" {
		return nil, nil
	}
	return e.cache.Lookup(ctx, normalized)
}

// SearchContext returns up to k deduplicated knowledge results.
func (e *Engine) SearchContext(ctx context.Context, question string, k int) ([]entities.RetrievalResult, error) {
	normalized := normalizer.Normalize(question)
	if normalized == "" {
		return nil, nil
	}
	return e.retriever.Retrieve(ctx, normalized, k)
}

// CacheAnswer memoizes an answer under the question.
func (e *Engine) CacheAnswer(ctx context.Context, question, answer, sources string) error {
	normalized := normalizer.Normalize(question)
	if normalized == "" {
		return nil
	}
	return e.cache.Store(ctx, normalized, answer, sources)
}

// Ask sends the question with pre-retrieved context and history to the model
// and returns the structured result. Model unavailability or failure yields
// a result with an empty Answer, never an error: the caller treats that as
// "no answer available".
func (e *Engine) Ask(ctx context.Context, question string, contextResults []entities.RetrievalResult, history []entities.Turn, lang string) *entities.AskResult {
	sources, sourceURLs := collectSources(contextResults)

	if !e.model.Available() {
		e.log.Warn("model not available, no answer")
		e.metrics.ModelFailure()
		return &entities.AskResult{}
	}

	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	e.metrics.ModelCall()
	raw, err := e.model.Generate(ctx, question, contextResults, history, lang)
	if err != nil {
		e.log.Error("generation failed", zap.Error(err))
		e.metrics.ModelFailure()
		return &entities.AskResult{}
	}
	if strings.TrimSpace(raw) == "" {
		e.log.Warn("model returned empty completion")
		e.metrics.ModelFailure()
		return &entities.AskResult{}
	}

	parsed := parser.Parse(raw)
	if parsed.FromFallback {
		e.metrics.ParserFallback()
	}

	// An off-topic answer must not cite domain sources.
	if parsed.OffTopic {
		sources, sourceURLs = nil, nil
	}

	e.log.Info("model answer",
		zap.Int("answer_chars", len(parsed.Answer)),
		zap.Bool("off_topic", parsed.OffTopic),
		zap.Bool("uncertain", parsed.Uncertain),
		zap.Int("suggestions", len(parsed.Suggestions)))

	return &entities.AskResult{
		Answer:      parsed.Answer,
		Sources:     sources,
		SourceURLs:  sourceURLs,
		OffTopic:    parsed.OffTopic,
		Uncertain:   parsed.Uncertain,
		Suggestions: parsed.Suggestions,
	}
}

// Answer runs the full pipeline for one user question. The cache
// participates only when the user has no prior conversation history, and the
// answer is memoized only when additionally it was not off-topic.
func (e *Engine) Answer(ctx context.Context, userID int64, question, lang string) (*entities.AskResult, error) {
	normalized := normalizer.Normalize(question)
	if normalized == "" {
		return &entities.AskResult{}, nil
	}

	var history []entities.Turn
	if e.convs != nil {
		var err error
		history, err = e.convs.History(ctx, userID)
		if err != nil {
			return nil, err
		}
	}
	policy := PolicyFor(history)

	if policy == AlwaysCheckCache {
		hit, err := e.cache.Lookup(ctx, normalized)
		if err != nil {
			e.log.Warn("cache lookup failed", zap.Error(err))
		} else if hit != nil {
			e.metrics.CacheHit()
			result := &entities.AskResult{
				Answer:     hit.Answer,
				FromCache:  true,
				Similarity: hit.Similarity,
			}
			if hit.Sources != "" {
				result.Sources = strings.Split(hit.Sources, ", ")
			}
			e.recordQuery(ctx, userID, question, normalized, hit.MatchedQuestion, hit.Answer, hit.Similarity, true)
			e.appendTurns(ctx, userID, question, hit.Answer)
			return result, nil
		} else {
			e.metrics.CacheMiss()
		}
	}

	contextResults, err := e.retriever.Retrieve(ctx, normalized, 0)
	if err != nil {
		e.log.Warn("context retrieval failed, answering without grounding", zap.Error(err))
		contextResults = nil
	}

	result := e.Ask(ctx, question, contextResults, history, lang)
	if !result.Answered() {
		e.recordQuery(ctx, userID, question, normalized, "", "", 0, false)
		return result, nil
	}

	if policy == AlwaysCheckCache && !result.OffTopic {
		if err := e.cache.Store(ctx, normalized, result.Answer, strings.Join(result.Sources, ", ")); err != nil {
			e.log.Warn("cache store failed", zap.Error(err))
		}
	}

	result.Similarity = 1.0
	e.recordQuery(ctx, userID, question, normalized, "[AI generated]", result.Answer, 1.0, true)
	e.appendTurns(ctx, userID, question, result.Answer)
	return result, nil
}

// ClearHistory discards a user's conversation history.
func (e *Engine) ClearHistory(ctx context.Context, userID int64) error {
	if e.convs == nil {
		return nil
	}
	return e.convs.Clear(ctx, userID)
}

func (e *Engine) recordQuery(ctx context.Context, userID int64, question, normalized, matched, answer string, similarity float64, answered bool) {
	if e.queryLog == nil {
		return
	}
	entry := ports.QueryLogEntry{
		UserID:          userID,
		RequestID:       requestIDFrom(ctx),
		QueryText:       question,
		NormalizedText:  normalized,
		MatchedQuestion: matched,
		AnswerText:      answer,
		Similarity:      similarity,
		Answered:        answered,
	}
	if err := e.queryLog.Log(ctx, entry); err != nil {
		e.log.Warn("query log failed", zap.Error(err))
	}
}

func (e *Engine) appendTurns(ctx context.Context, userID int64, question, answer string) {
	if e.convs == nil {
		return
	}
	if err := e.convs.Append(ctx, userID, entities.RoleUser, question); err != nil {
		e.log.Warn("history append failed", zap.Error(err))
		return
	}
	if err := e.convs.Append(ctx, userID, entities.RoleAssistant, answer); err != nil {
		e.log.Warn("history append failed", zap.Error(err))
	}
}

// collectSources gathers deduplicated non-empty source names and URLs from
// the retrieved context, preserving first-occurrence order.
func collectSources(results []entities.RetrievalResult) (sources, urls []string) {
	seenSrc := make(map[string]struct{})
	seenURL := make(map[string]struct{})
	for _, r := range results {
		if r.Source != "" {
			if _, ok := seenSrc[r.Source]; !ok {
				seenSrc[r.Source] = struct{}{}
				sources = append(sources, r.Source)
			}
		}
		if r.SourceURL != "" {
			if _, ok := seenURL[r.SourceURL]; !ok {
				seenURL[r.SourceURL] = struct{}{}
				urls = append(urls, r.SourceURL)
			}
		}
	}
	return sources, urls
}
