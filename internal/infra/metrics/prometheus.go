package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records game lifecycle metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	gamesCreated    prometheus.Counter
	gamesLive       prometheus.Gauge
	questionsPlayed prometheus.Histogram
	questionsClosed *prometheus.CounterVec
	answers         prometheus.Counter
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		gamesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "live_quiz_games_created_total",
			Help: "Total number of games created",
		}),
		gamesLive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "live_quiz_games_live",
			Help: "Games currently holding a PIN",
		}),
		questionsPlayed: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "live_quiz_questions_played",
			Help:    "Questions shown per finished game",
			Buckets: prometheus.LinearBuckets(0, 5, 8),
		}),
		// trigger: timer, all_answered, host_ended
		questionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "live_quiz_questions_closed_total",
			Help: "Questions graded, by what closed them",
		}, []string{"trigger"}),
		answers: factory.NewCounter(prometheus.CounterOpts{
			Name: "live_quiz_answers_total",
			Help: "Accepted answer submissions",
		}),
	}
}

func (c *Collector) GameCreated() {
	c.gamesCreated.Inc()
	c.gamesLive.Inc()
}

func (c *Collector) GameEnded(questionsPlayed int) {
	c.gamesLive.Dec()
	c.questionsPlayed.Observe(float64(questionsPlayed))
}

func (c *Collector) QuestionClosed(trigger string) {
	c.questionsClosed.WithLabelValues(trigger).Inc()
}

func (c *Collector) AnswerRecorded() {
	c.answers.Inc()
}

// Handler exposes the collector in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
