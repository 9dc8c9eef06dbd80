package evo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

const tracerName = "virusnet/internal/evo"

var tracer = otel.Tracer(tracerName)

var (
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "virusnet_evaluations_total",
		Help: "Fitness evaluations by outcome",
	}, []string{"outcome"})

	evaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "virusnet_evaluation_duration_seconds",
		Help:    "Wall time of one simulation-backed fitness evaluation",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	generationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "virusnet_generations_total",
		Help: "Generations fully evaluated",
	})

	degenerateFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "virusnet_selection_uniform_fallbacks_total",
		Help: "Selection draws that fell back to uniform sampling because every weight was zero",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "virusnet_runs_total",
		Help: "Exploration runs by stop status",
	}, []string{"status"})

	bestFitness = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "virusnet_best_fitness",
		Help: "Best fitness of the most recently evaluated generation",
	})
)
