package service_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/bikeflow/internal/app"
	"github.com/okian/bikeflow/internal/adapters/repository"
	"github.com/okian/bikeflow/internal/domain/model"
	"github.com/okian/bikeflow/internal/domain/scoring"
	"github.com/okian/bikeflow/internal/domain/types"
	"github.com/okian/bikeflow/internal/historical"
	"github.com/okian/bikeflow/internal/medallion"
	"github.com/okian/bikeflow/internal/monitoring"
	"github.com/okian/bikeflow/pkg/logger"
)

var now = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func stations(context.Context) scoring.StationLookup {
	return scoring.Stations{
		101: {Lat: 40.7128, Lon: -74.0060},
		201: {Lat: 40.7200, Lon: -74.0000},
	}
}

func cleanTrip(id string, start time.Time) map[string]any {
	return map[string]any{
		"trip_id":          id,
		"bike_id":          42,
		"start_time":       start.Format(time.RFC3339),
		"end_time":         start.Add(5 * time.Minute).Format(time.RFC3339),
		"start_station_id": 101,
		"end_station_id":   201,
		"rider_age":        28,
		"trip_duration":    300,
		"bike_type":        "classic",
		"member_casual":    "member",
	}
}

func poorTrip(id string, start time.Time) map[string]any {
	return map[string]any{
		"trip_id":       id,
		"start_time":    start.Format(time.RFC3339),
		"end_time":      start.Format(time.RFC3339),
		"rider_age":     "NaN",
		"trip_duration": -50,
	}
}

func putEvent(s *repository.MemoryStore, id string, row map[string]any, modified time.Time) {
	data, _ := json.Marshal(row)
	s.PutAt("bronze", medallion.BronzeEventKey(modified, id, ".json"), data, modified)
}

// failingGets fails the first n reads under prefix in bucket.
type failingGets struct {
	*repository.MemoryStore
	bucket, prefix string
	err            error

	mu sync.Mutex
	n  int
}

func (f *failingGets) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	f.mu.Lock()
	fail := f.n > 0 && bucket == f.bucket && strings.HasPrefix(key, f.prefix)
	if fail {
		f.n--
	}
	f.mu.Unlock()
	if fail {
		return nil, f.err
	}
	return f.MemoryStore.Get(ctx, bucket, key)
}

func newService(store repository.ObjectStore, opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithClock(clock),
		service.WithLogger(logger.Nop()),
		service.WithScoringWorkers(2),
		service.WithRetry(3, time.Millisecond),
	}
	return service.New(store, append(base, opts...)...)
}

func flowStatus(store repository.ObjectStore, flow string) monitoring.FlowStatus {
	m := monitoring.New(store, monitoring.Buckets{Bronze: "bronze", Silver: "silver", Gold: "gold"}, clock, logger.Nop())
	st, _ := m.ReadFlowStatus(context.Background(), flow)
	return st
}

func TestService_RunRealtime(t *testing.T) {
	Convey("Given a pipeline service", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		svc := newService(store, service.WithStations(stations))

		Convey("When bronze is empty", func() {
			res := svc.RunRealtime(ctx)

			Convey("Then the run is empty and its status is published", func() {
				So(res.Status, ShouldEqual, types.RunEmpty)
				So(res.Err, ShouldBeNil)
				So(res.RunID, ShouldNotBeEmpty)
				So(flowStatus(store, service.FlowRealtime).Status, ShouldEqual, "empty")
			})
		})

		Convey("When one of four events is poor", func() {
			for i, id := range []string{"c1", "c2", "c3"} {
				putEvent(store, id, cleanTrip(id, now.Add(-time.Hour)), now.Add(time.Duration(i-10)*time.Minute))
			}
			putEvent(store, "p1", poorTrip("p1", now.Add(-time.Hour)), now.Add(-5*time.Minute))

			res := svc.RunRealtime(ctx)

			Convey("Then the gate blocks the batch and nothing is promoted", func() {
				So(res.Status, ShouldEqual, types.RunBlocked)
				So(res.Discovered, ShouldEqual, 4)
				So(res.Metrics.PoorShare, ShouldEqual, 0.25)
				So(res.Silver, ShouldBeNil)

				partitions, _ := store.List(ctx, "silver", "date=")
				So(partitions, ShouldBeEmpty)
				staged, _ := store.List(ctx, "silver", medallion.StagingPrefix)
				So(staged, ShouldHaveLength, 1)
				_, err := store.Get(ctx, "gold", medallion.GoldKey(model.TableStationStatus))
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("And the report asks for attention", func() {
				report, err := svc.LatestReport(ctx)
				So(err, ShouldBeNil)
				So(report.Status, ShouldEqual, medallion.StatusAttention)
				So(report.Records, ShouldEqual, 4)
				So(flowStatus(store, service.FlowRealtime).Status, ShouldEqual, "blocked")
			})
		})

		Convey("When every event is clean", func() {
			for i, id := range []string{"c1", "c2", "c3", "c4"} {
				putEvent(store, id, cleanTrip(id, now.Add(-time.Hour)), now.Add(time.Duration(i-10)*time.Minute))
			}

			res := svc.RunRealtime(ctx)

			Convey("Then the batch reaches silver and gold", func() {
				So(res.Status, ShouldEqual, types.RunCompleted)
				So(res.Records, ShouldEqual, 4)
				So(res.Silver.Keys, ShouldHaveLength, 1)
				So(res.Gold, ShouldContainKey, model.TableStationStatus)

				rows, err := medallion.ReadTable[model.StationStatus](ctx, store, "gold", model.TableStationStatus)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
				So(rows[0].TripsStarted, ShouldEqual, int64(4))
				So(rows[0].SourceType, ShouldEqual, "realtime")

				staged, _ := store.List(ctx, "silver", medallion.StagingPrefix)
				So(staged, ShouldBeEmpty)
			})

			Convey("And a second run finds nothing new", func() {
				again := svc.RunRealtime(ctx)
				So(again.Status, ShouldEqual, types.RunEmpty)
			})

			Convey("And stats expose the last run", func() {
				last, ok := svc.LastRun(service.FlowRealtime)
				So(ok, ShouldBeTrue)
				So(last.RunID, ShouldEqual, res.RunID)
				runs := svc.GetStats()["runs"].(map[string]service.RunResult)
				So(runs, ShouldContainKey, service.FlowRealtime)
			})
		})

		Convey("When listing fails transiently once", func() {
			putEvent(store, "c1", cleanTrip("c1", now.Add(-time.Hour)), now.Add(-time.Minute))
			store.FailNext("list", repository.ErrTransient)

			res := svc.RunRealtime(ctx)

			Convey("Then the stage is retried and the run completes", func() {
				So(res.Err, ShouldBeNil)
				So(res.Status, ShouldEqual, types.RunCompleted)
			})
		})

		Convey("When listing fails permanently", func() {
			putEvent(store, "c1", cleanTrip("c1", now.Add(-time.Hour)), now.Add(-time.Minute))
			store.FailNext("list", errors.New("access denied"))

			res := svc.RunRealtime(ctx)

			Convey("Then the run reports an error without retrying", func() {
				So(res.Status, ShouldEqual, types.RunError)
				So(res.Err, ShouldNotBeNil)
				So(res.Error, ShouldContainSubstring, "access denied")
				st := flowStatus(store, service.FlowRealtime)
				So(st.Status, ShouldEqual, "error")
				So(st.Error, ShouldContainSubstring, "access denied")

				next := svc.RunRealtime(ctx)
				So(next.Status, ShouldEqual, types.RunCompleted)
			})
		})
	})
}

const tripsCSV = `ride_id,rideable_type,started_at,ended_at,start_station_id,end_station_id,member_casual
A1,electric_bike,2023-05-01 08:00:00,2023-05-01 08:12:00,5329.03,5450.04,member
A2,classic_bike,2023-05-01 09:00:00,2023-05-01 09:07:30,6140.05,6140.05,casual
`

func archive(t *testing.T) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("202305-citibike-tripdata.csv")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(tripsCSV)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestService_Historical(t *testing.T) {
	Convey("Given a remote archive bucket", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		So(store.Put(ctx, "tripdata", "202305-citibike-tripdata.zip", archive(t)), ShouldBeNil)
		So(store.Put(ctx, "tripdata", "JC-202305-citibike-tripdata.zip", archive(t)), ShouldBeNil)

		Convey("When no archive source is configured", func() {
			svc := newService(store)
			_, res := svc.StageHistorical(ctx)
			So(res.Status, ShouldEqual, types.RunError)
			So(errors.Is(res.Err, service.ErrNoArchiveSource), ShouldBeTrue)
		})

		svc := newService(store,
			service.WithArchiveSource(historical.NewStoreSource(store, "tripdata", "")),
			service.WithArchiveWorkers(2))

		Convey("When staging then loading", func() {
			staged, stageRes := svc.StageHistorical(ctx)
			So(stageRes.Status, ShouldEqual, types.RunCompleted)
			So(staged.Staged, ShouldHaveLength, 1)

			res := svc.RunHistorical(ctx)

			Convey("Then historical rows reach gold tagged historical", func() {
				So(res.Err, ShouldBeNil)
				So(res.Status, ShouldEqual, types.RunCompleted)
				So(res.Records, ShouldEqual, 2)
				So(res.Metrics.SourceType, ShouldEqual, "historical")

				rows, err := medallion.ReadTable[model.QualityTrend](ctx, store, "gold", model.TableQualityTrends)
				So(err, ShouldBeNil)
				So(rows, ShouldNotBeEmpty)
				for _, r := range rows {
					So(r.SourceType, ShouldEqual, "historical")
				}

				pending, _ := store.List(ctx, "historical", historical.PendingPrefix)
				So(pending, ShouldBeEmpty)
			})

			Convey("And reruns neither restage nor reload", func() {
				again, stageAgain := svc.StageHistorical(ctx)
				So(stageAgain.Status, ShouldEqual, types.RunEmpty)
				So(again.Skipped, ShouldHaveLength, 1)
				So(svc.RunHistorical(ctx).Status, ShouldEqual, types.RunEmpty)

				bronze, _ := store.List(ctx, "bronze", historical.BronzePrefix)
				So(bronze, ShouldHaveLength, 1)
			})

			Convey("And realtime discovery ignores historical bronze", func() {
				So(svc.RunRealtime(ctx).Status, ShouldEqual, types.RunEmpty)
			})
		})

		Convey("When scoring the loaded batch fails", func() {
			flaky := &failingGets{MemoryStore: store, bucket: "bronze", prefix: historical.BronzePrefix,
				err: errors.New("decoder crashed"), n: 1}
			svc := newService(flaky,
				service.WithArchiveSource(historical.NewStoreSource(store, "tripdata", "")),
				service.WithArchiveWorkers(2))
			_, stageRes := svc.StageHistorical(ctx)
			So(stageRes.Status, ShouldEqual, types.RunCompleted)

			failed := svc.RunHistorical(ctx)
			So(failed.Status, ShouldEqual, types.RunError)

			Convey("Then the batch stays pending and the manifest untouched", func() {
				pending, _ := store.List(ctx, "historical", historical.PendingPrefix)
				So(pending, ShouldHaveLength, 1)
				processed, _ := store.List(ctx, "historical", historical.ProcessedPrefix)
				So(processed, ShouldBeEmpty)

				m, err := historical.NewManifestStore(store, "historical", clock, logger.Nop()).Load(ctx)
				So(err, ShouldBeNil)
				So(m.Status("202305-citibike-tripdata.zip"), ShouldEqual, types.ArchivePending)
			})

			Convey("Then a rerun reloads, promotes and archives it", func() {
				res := svc.RunHistorical(ctx)
				So(res.Err, ShouldBeNil)
				So(res.Status, ShouldEqual, types.RunCompleted)
				So(res.Records, ShouldEqual, 2)

				pending, _ := store.List(ctx, "historical", historical.PendingPrefix)
				So(pending, ShouldBeEmpty)
				processed, _ := store.List(ctx, "historical", historical.ProcessedPrefix)
				So(processed, ShouldHaveLength, 1)
				bronze, _ := store.List(ctx, "bronze", historical.BronzePrefix)
				So(bronze, ShouldHaveLength, 1)

				m, _ := historical.NewManifestStore(store, "historical", clock, logger.Nop()).Load(ctx)
				So(m.Status("202305-citibike-tripdata.zip"), ShouldEqual, types.ArchiveProcessed)
				So(svc.RunHistorical(ctx).Status, ShouldEqual, types.RunEmpty)
			})
		})
	})
}

func TestService_Monitor(t *testing.T) {
	Convey("Given a service with an alert sink", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		var alerts []string
		sink := monitoring.AlertFunc(func(_ context.Context, msg string) error {
			alerts = append(alerts, msg)
			return nil
		})
		svc := newService(store, service.WithAlertSink(sink), service.WithMaxLag(10*time.Minute))

		Convey("When bronze is empty", func() {
			out, err := svc.Monitor(ctx)

			Convey("Then an alert is raised with the snapshot key", func() {
				So(err, ShouldBeNil)
				So(out.Health.Healthy, ShouldBeFalse)
				So(out.Alerted, ShouldBeTrue)
				So(alerts, ShouldHaveLength, 1)
				So(alerts[0], ShouldContainSubstring, monitoring.SnapshotKey)
			})
		})

		Convey("When bronze is fresh", func() {
			putEvent(store, "c1", cleanTrip("c1", now), now.Add(-time.Minute))
			out, err := svc.Monitor(ctx)

			Convey("Then no alert is raised", func() {
				So(err, ShouldBeNil)
				So(out.Health.Healthy, ShouldBeTrue)
				So(out.Snapshot.BronzeFiles, ShouldEqual, 1)
				So(alerts, ShouldBeEmpty)
				So(svc.GetStats(), ShouldContainKey, "monitor")
			})
		})
	})
}
