package knowledge

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce        sync.Once
	metricsMu          sync.Mutex
	metricsInitErr     error
	ingestDurationHist metric.Float64Histogram
	chunkCounter       metric.Int64Counter
	dedupHitCounter    metric.Int64Counter
	statusCounter      metric.Int64Counter
	queryLatencyHist   metric.Float64Histogram
	expansionCounter   metric.Int64Counter
)

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.Meter("mnemora.knowledge")
		ingestDurationHist, metricsInitErr = meter.Float64Histogram(
			"knowledge_ingest_duration_seconds",
			metric.WithDescription("Duration of one item's ingestion pipeline"),
		)
		if metricsInitErr != nil {
			return
		}
		chunkCounter, metricsInitErr = meter.Int64Counter(
			"knowledge_chunks_total",
			metric.WithDescription("Chunks produced during ingestion"),
		)
		if metricsInitErr != nil {
			return
		}
		dedupHitCounter, metricsInitErr = meter.Int64Counter(
			"knowledge_dedup_hits_total",
			metric.WithDescription("Ingestion calls short-circuited by the dedup gate"),
		)
		if metricsInitErr != nil {
			return
		}
		statusCounter, metricsInitErr = meter.Int64Counter(
			"knowledge_status_transitions_total",
			metric.WithDescription("Embed status transitions by target status"),
		)
		if metricsInitErr != nil {
			return
		}
		queryLatencyHist, metricsInitErr = meter.Float64Histogram(
			"knowledge_query_latency_seconds",
			metric.WithDescription("End-to-end semantic search latency"),
		)
		if metricsInitErr != nil {
			return
		}
		expansionCounter, metricsInitErr = meter.Int64Counter(
			"knowledge_query_expansions_total",
			metric.WithDescription("HyDE expansion attempts by outcome"),
		)
	})
	return metricsInitErr
}

func RecordIngestDuration(ctx context.Context, modality Modality, d time.Duration) {
	if err := ensureMetrics(); err != nil || ingestDurationHist == nil {
		return
	}
	ingestDurationHist.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("modality", string(modality)),
	))
}

func RecordIngestChunks(ctx context.Context, modality Modality, chunks int) {
	if chunks <= 0 {
		return
	}
	if err := ensureMetrics(); err != nil || chunkCounter == nil {
		return
	}
	chunkCounter.Add(ctx, int64(chunks), metric.WithAttributes(
		attribute.String("modality", string(modality)),
	))
}

func RecordDedupHit(ctx context.Context, modality Modality) {
	if err := ensureMetrics(); err != nil || dedupHitCounter == nil {
		return
	}
	dedupHitCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("modality", string(modality)),
	))
}

func RecordStatusTransition(ctx context.Context, status EmbedStatus) {
	if err := ensureMetrics(); err != nil || statusCounter == nil {
		return
	}
	statusCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(status)),
	))
}

func RecordQueryLatency(ctx context.Context, d time.Duration) {
	if err := ensureMetrics(); err != nil || queryLatencyHist == nil {
		return
	}
	queryLatencyHist.Record(ctx, d.Seconds())
}

func RecordQueryExpansion(ctx context.Context, outcome string) {
	if err := ensureMetrics(); err != nil || expansionCounter == nil {
		return
	}
	expansionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// ResetMetricsForTesting clears lazy instrument state between tests.
func ResetMetricsForTesting() {
	metricsMu.Lock()
	metricsOnce = sync.Once{}
	metricsInitErr = nil
	ingestDurationHist = nil
	chunkCounter = nil
	dedupHitCounter = nil
	statusCounter = nil
	queryLatencyHist = nil
	expansionCounter = nil
	metricsMu.Unlock()
}
