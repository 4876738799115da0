// Package monitoring checks bronze freshness, publishes observability
// snapshots and flow status documents, and raises alerts.
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/bikeflow/internal/adapters/repository"
	"github.com/okian/bikeflow/pkg/logger"
	"github.com/okian/bikeflow/pkg/metrics"
)

// Keys inside the gold bucket.
const (
	SnapshotKey      = "dashboards/pipeline_metrics.json"
	FlowStatusPrefix = "dashboards/flow_status/"
)

// Buckets names the medallion buckets being watched.
type Buckets struct {
	Bronze string
	Silver string
	Gold   string
}

// Health is the outcome of a freshness check.
type Health struct {
	Healthy      bool       `json:"healthy"`
	LatestBronze *time.Time `json:"latest_bronze"`
	Lag          string     `json:"lag,omitempty"`
}

// Snapshot counts objects per bucket.
type Snapshot struct {
	BronzeFiles int       `json:"bronze_files"`
	SilverFiles int       `json:"silver_files"`
	GoldFiles   int       `json:"gold_files"`
	GeneratedAt time.Time `json:"generated_at"`
}

// FlowStatus is the last known state of a flow.
type FlowStatus struct {
	Flow      string    `json:"flow"`
	Status    string    `json:"status"`
	Records   int       `json:"records"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
}

// Monitor inspects the buckets.
type Monitor struct {
	store   repository.ObjectStore
	buckets Buckets
	clock   func() time.Time
	log     logger.Logger
}

// New creates a monitor. A nil clock uses time.Now.
func New(store repository.ObjectStore, buckets Buckets, clock func() time.Time, log logger.Logger) *Monitor {
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = logger.Default()
	}
	return &Monitor{store: store, buckets: buckets, clock: clock, log: log.Named("monitor")}
}

// CheckHealth reports healthy iff the newest bronze object is no older than
// maxLag. An empty bronze bucket is unhealthy.
func (m *Monitor) CheckHealth(ctx context.Context, maxLag time.Duration) (Health, error) {
	objects, err := m.store.List(ctx, m.buckets.Bronze, "")
	if err != nil {
		return Health{}, err
	}
	var latest time.Time
	for _, o := range objects {
		if o.LastModified.After(latest) {
			latest = o.LastModified
		}
	}
	if latest.IsZero() {
		return Health{}, nil
	}

	latest = latest.UTC()
	lag := m.clock().Sub(latest)
	metrics.UpdateBronzeLag(lag.Seconds())
	return Health{
		Healthy:      lag <= maxLag,
		LatestBronze: &latest,
		Lag:          lag.Round(time.Second).String(),
	}, nil
}

// Snapshot counts objects in every bucket and writes the result to the gold
// bucket. It returns the snapshot and its key.
func (m *Monitor) Snapshot(ctx context.Context) (Snapshot, string, error) {
	var s Snapshot
	counts := []struct {
		bucket string
		dst    *int
	}{
		{m.buckets.Bronze, &s.BronzeFiles},
		{m.buckets.Silver, &s.SilverFiles},
		{m.buckets.Gold, &s.GoldFiles},
	}
	for _, c := range counts {
		objects, err := m.store.List(ctx, c.bucket, "")
		if err != nil {
			return Snapshot{}, "", err
		}
		*c.dst = len(objects)
	}
	s.GeneratedAt = m.clock().UTC()

	if err := m.putJSON(ctx, SnapshotKey, s); err != nil {
		return Snapshot{}, "", err
	}
	return s, SnapshotKey, nil
}

// WriteFlowStatus records the latest state of a flow.
func (m *Monitor) WriteFlowStatus(ctx context.Context, st FlowStatus) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = m.clock().UTC()
	}
	return m.putJSON(ctx, FlowStatusPrefix+st.Flow+".json", st)
}

// ReadFlowStatus returns the stored state of a flow.
func (m *Monitor) ReadFlowStatus(ctx context.Context, flow string) (FlowStatus, error) {
	data, err := m.store.Get(ctx, m.buckets.Gold, FlowStatusPrefix+flow+".json")
	if err != nil {
		return FlowStatus{}, err
	}
	var st FlowStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return FlowStatus{}, fmt.Errorf("decode flow status %s: %w", flow, err)
	}
	return st, nil
}

func (m *Monitor) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return m.store.Put(ctx, m.buckets.Gold, key, data)
}

// AlertMessage formats the delay alert for an unhealthy check.
func AlertMessage(h Health, snapshotKey string) string {
	latest := "none"
	if h.LatestBronze != nil {
		latest = h.LatestBronze.Format(time.RFC3339)
	}
	return fmt.Sprintf("Pipeline delay detected. Latest bronze event: %s | metrics_snapshot=%s", latest, snapshotKey)
}
