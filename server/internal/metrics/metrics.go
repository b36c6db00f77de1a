// Package metrics exposes hub counters in the Prometheus exposition format.
package metrics

import (
	"log/slog"
	"maps"
	"net/http"
	"slices"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/linkscore/linkscore/server/internal/coordinator"
)

const namespace = "linkscore_"

// StatsSource reports coordinator activity.
type StatsSource interface {
	Stats() coordinator.Stats
}

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	Count() int
}

// ConnCounter reports open WebSocket connections by role.
type ConnCounter interface {
	Connections() (observers, viewers int)
}

// Sources feeds the exposition. Nil fields are skipped.
type Sources struct {
	Coordinator StatsSource
	Sessions    SessionCounter
	Connections ConnCounter
}

// Handler serves /metrics. The format is negotiated from the Accept header.
func Handler(src Sources) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		format := expfmt.Negotiate(r.Header)
		w.Header().Set("Content-Type", string(format))

		enc := expfmt.NewEncoder(w, format)
		for _, mf := range Gather(src) {
			if err := enc.Encode(mf); err != nil {
				slog.Debug("metrics: encode failed", "family", mf.GetName(), "err", err)
				return
			}
		}
		if closer, ok := enc.(expfmt.Closer); ok {
			_ = closer.Close()
		}
	})
}

// Gather builds the current metric families from src.
func Gather(src Sources) []*dto.MetricFamily {
	var out []*dto.MetricFamily

	if src.Sessions != nil {
		out = append(out, gauge("sessions", "Live sessions held by the hub.", float64(src.Sessions.Count())))
	}
	if src.Connections != nil {
		observers, viewers := src.Connections.Connections()
		out = append(out, gaugeVec("connections", "Open WebSocket connections.", "role", map[string]float64{
			"observer": float64(observers),
			"viewer":   float64(viewers),
		}))
	}
	if src.Coordinator != nil {
		s := src.Coordinator.Stats()
		out = append(out,
			gauge("observer_channels", "Registered page observer channels.", float64(s.Channels)),
			gauge("viewer_subscriptions", "Active viewer subscriptions.", float64(s.Subscriptions)),
			counter("batches_total", "Observer batch reports with at least one valid candidate.", float64(s.Batches)),
			counterVec("candidates_total", "Reported candidates by outcome.", "outcome", map[string]float64{
				"accepted": float64(s.CandidatesAccepted),
				"dropped":  float64(s.CandidatesDropped),
				"cached":   float64(s.CacheHits),
			}),
			counterVec("scores_total", "Completed scoring calls by result.", "result", map[string]float64{
				"ok":     float64(s.ScoresOK),
				"failed": float64(s.ScoresFailed),
			}),
			counter("stale_results_total", "Scores discarded because their session moved to a new query.", float64(s.StaleDiscarded)),
			counter("deliveries_dropped_total", "Notifications not delivered to an observer or viewer.", float64(s.DeliveriesDropped)),
		)
	}
	return out
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(namespace + name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(namespace + name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(v)}}},
	}
}

func gaugeVec(name, help, label string, values map[string]float64) *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: proto.String(namespace + name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
	for _, lv := range slices.Sorted(maps.Keys(values)) {
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label: []*dto.LabelPair{{Name: proto.String(label), Value: proto.String(lv)}},
			Gauge: &dto.Gauge{Value: proto.Float64(values[lv])},
		})
	}
	return mf
}

func counterVec(name, help, label string, values map[string]float64) *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: proto.String(namespace + name),
		Help: proto.String(help),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, lv := range slices.Sorted(maps.Keys(values)) {
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{{Name: proto.String(label), Value: proto.String(lv)}},
			Counter: &dto.Counter{Value: proto.Float64(values[lv])},
		})
	}
	return mf
}
