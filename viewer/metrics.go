package viewer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// framesTotal counts animation frames by whether they redrew
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stitchgraph_viewer_frames_total",
		Help: "Animation frames by outcome",
	}, []string{"outcome"})

	// frameDuration tracks the time spent in one frame
	frameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stitchgraph_viewer_frame_duration_seconds",
		Help:    "Frame duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	shadowRefreshTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stitchgraph_viewer_shadow_refresh_total",
		Help: "Shadow canvas redraws",
	})

	framePanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stitchgraph_viewer_frame_panics_total",
		Help: "Frames aborted by a recovered panic",
	})

	// registryFullTotal counts objects left unpickable
	registryFullTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stitchgraph_viewer_registry_full_total",
		Help: "Objects that could not be given an identity colour",
	})

	registeredObjects = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stitchgraph_viewer_registered_objects",
		Help: "Occupied colour registry slots",
	})
)
