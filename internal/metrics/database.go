package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eventdesk/server/internal/fault"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DBPoolConnections reports pgxpool state: open, in_use, idle and max.
	DBPoolConnections = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_pool_connections",
			Help:      "Database pool connections by state",
		},
		[]string{"state"},
	)

	// DBPoolEmptyAcquires is pgxpool's running count of acquires that had to
	// wait for a connection.
	DBPoolEmptyAcquires = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_pool_empty_acquires",
			Help:      "Acquires that waited because the pool was exhausted (cumulative)",
		},
	)

	DBQueryDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBErrors = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_errors_total",
			Help:      "Database operations that failed, by cause",
		},
		[]string{"operation", "error_type"},
	)

	// EventsByStatus is sampled from the events table.
	EventsByStatus = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events",
			Help:      "Events by lifecycle status",
		},
		[]string{"status"},
	)

	// SeatsTaken counts registered and attended participations across
	// published events.
	SeatsTaken = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seats_taken",
			Help:      "Seats held in published events",
		},
	)
)

var eventStatuses = []string{"draft", "published", "cancelled", "completed"}

// Inventory is a point-in-time count of events and held seats.
type Inventory struct {
	EventsByStatus map[string]int
	SeatsTaken     int
}

// InventorySource reads an Inventory from the store.
type InventorySource interface {
	Inventory(ctx context.Context) (Inventory, error)
}

// DBCollector samples pool statistics and the event inventory on an
// interval.
type DBCollector struct {
	pool     *pgxpool.Pool
	source   InventorySource
	timeout  time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewDBCollector samples pool and source. Either may be nil.
func NewDBCollector(pool *pgxpool.Pool, source InventorySource) *DBCollector {
	return &DBCollector{
		pool:    pool,
		source:  source,
		timeout: 5 * time.Second,
		stop:    make(chan struct{}),
	}
}

// Start blocks, sampling once immediately and then every interval until ctx
// is done or Stop is called.
func (c *DBCollector) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.collect(ctx)
	for {
		select {
		case <-ticker.C:
			c.collect(ctx)
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop is safe to call more than once.
func (c *DBCollector) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *DBCollector) collect(ctx context.Context) {
	if c.pool != nil {
		stat := c.pool.Stat()
		DBPoolConnections.WithLabelValues("open").Set(float64(stat.TotalConns()))
		DBPoolConnections.WithLabelValues("in_use").Set(float64(stat.AcquiredConns()))
		DBPoolConnections.WithLabelValues("idle").Set(float64(stat.IdleConns()))
		DBPoolConnections.WithLabelValues("max").Set(float64(stat.MaxConns()))
		DBPoolEmptyAcquires.Set(float64(stat.EmptyAcquireCount()))
	}

	if c.source == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	inventory, err := c.source.Inventory(ctx)
	RecordQuery("inventory", start, err)
	if err != nil {
		return
	}
	for _, status := range eventStatuses {
		EventsByStatus.WithLabelValues(status).Set(float64(inventory.EventsByStatus[status]))
	}
	SeatsTaken.Set(float64(inventory.SeatsTaken))
}

// RecordQuery observes one database operation. Use it deferred:
//
//	start := time.Now()
//	defer func() { metrics.RecordQuery("participation_tx", start, err) }()
func RecordQuery(operation string, start time.Time, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}

	errorType := "query_error"
	switch {
	case errors.Is(err, context.Canceled):
		errorType = "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		errorType = "timeout"
	case fault.KindOf(err) != fault.KindStore && fault.KindOf(err) != fault.KindUnknown:
		// Domain rejections such as a full event are not database faults.
		errorType = "rejected"
	}
	DBErrors.WithLabelValues(operation, errorType).Inc()
}
