// Package metrics exposes Prometheus counters for the answering pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements usecases.Recorder on Prometheus counters.
type Recorder struct {
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	modelCalls      prometheus.Counter
	modelFailures   prometheus.Counter
	parserFallbacks prometheus.Counter
	documentsTotal  prometheus.Counter
}

// NewRecorder registers the counters on the given registerer. Pass
// prometheus.DefaultRegisterer for the default registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "ustazai_cache_hits_total",
			Help: "Answers served from the semantic cache.",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "ustazai_cache_misses_total",
			Help: "Cache lookups that fell through to generation.",
		}),
		modelCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "ustazai_model_calls_total",
			Help: "Completion requests sent to the model.",
		}),
		modelFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ustazai_model_failures_total",
			Help: "Completion requests that failed after retries.",
		}),
		parserFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "ustazai_parser_fallbacks_total",
			Help: "Responses parsed via the trailing-bullet fallback.",
		}),
		documentsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ustazai_documents_ingested_total",
			Help: "Documents written to the knowledge namespace.",
		}),
	}
}

func (r *Recorder) CacheHit()       { r.cacheHits.Inc() }
func (r *Recorder) CacheMiss()      { r.cacheMisses.Inc() }
func (r *Recorder) ModelCall()      { r.modelCalls.Inc() }
func (r *Recorder) ModelFailure()   { r.modelFailures.Inc() }
func (r *Recorder) ParserFallback() { r.parserFallbacks.Inc() }

func (r *Recorder) DocumentsIngested(n int) { r.documentsTotal.Add(float64(n)) }
