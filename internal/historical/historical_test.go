package historical

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/bikeflow/internal/adapters/dataset"
	"github.com/okian/bikeflow/internal/adapters/repository"
	"github.com/okian/bikeflow/internal/domain/model"
	"github.com/okian/bikeflow/internal/domain/types"
	"github.com/okian/bikeflow/pkg/logger"
)

func TestListingRules(t *testing.T) {
	Convey("Archive eligibility", t, func() {
		So(Eligible("202401-citibike-tripdata.zip"), ShouldBeTrue)
		So(Eligible("2013-citibike-tripdata.ZIP"), ShouldBeTrue)
		So(Eligible("JC-202401-citibike-tripdata.zip"), ShouldBeFalse)
		So(Eligible("index.html"), ShouldBeFalse)
		So(Eligible("citibike-tripdata.zip"), ShouldBeFalse)
		So(Eligible("202401-citibike-tripdata.csv"), ShouldBeFalse)
	})

	Convey("Slugs are lower-case with collapsed separators", t, func() {
		So(Slug("202401-citibike-tripdata"), ShouldEqual, "202401_citibike_tripdata")
		So(Slug("--Foo  Bar.csv--"), ShouldEqual, "foo_bar_csv")
	})

	Convey("StoreSource filters, sorts and narrows by prefix", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		for _, k := range []string{"202402-citibike-tripdata.zip", "JC-202401-citibike-tripdata.zip",
			"202401-citibike-tripdata.zip", "index.html", "2013-citibike-tripdata.zip"} {
			So(store.Put(ctx, remoteBucket, k, []byte("x")), ShouldBeNil)
		}

		all, err := NewStoreSource(store, remoteBucket, "").List(ctx)
		So(err, ShouldBeNil)
		So(all, ShouldHaveLength, 3)
		So(all[0].Key, ShouldEqual, "2013-citibike-tripdata.zip")

		narrowed, err := NewStoreSource(store, remoteBucket, "2024").List(ctx)
		So(err, ShouldBeNil)
		So(narrowed, ShouldHaveLength, 2)
		So(narrowed[0].Key, ShouldEqual, "202401-citibike-tripdata.zip")

		_, err = NewStoreSource(store, remoteBucket, "").Fetch(ctx, "missing.zip")
		So(errors.Is(err, ErrArchiveFetch), ShouldBeTrue)
	})
}

func TestExtract(t *testing.T) {
	Convey("Given a zip with nested archives and auxiliary files", t, func() {
		inner := zipOf([2]string{"inner.csv", modernCSV})
		outer := zipOf(
			[2]string{"2016-01.csv", legacyCSV},
			[2]string{"__MACOSX/._2016-01.csv", "junk"},
			[2]string{"data/._hidden.csv", "junk"},
			[2]string{"readme.txt", "hello"},
			[2]string{"nested/part2.zip", string(inner)},
		)

		Convey("CSV members are found with derived slugs", func() {
			members, err := Extract(outer, "201601_tripdata", Limits{MaxDepth: 3, MaxBytes: 1 << 20})
			So(err, ShouldBeNil)
			So(members, ShouldHaveLength, 2)
			So(members[0].Slug, ShouldEqual, "201601_tripdata_2016_01")
			So(members[1].Slug, ShouldEqual, "201601_tripdata_part2_inner")
		})

		Convey("nesting beyond the depth bound fails", func() {
			_, err := Extract(outer, "x", Limits{MaxDepth: 0, MaxBytes: 1 << 20})
			So(errors.Is(err, ErrArchiveTooDeep), ShouldBeTrue)
		})

		Convey("exceeding the size budget fails", func() {
			_, err := Extract(outer, "x", Limits{MaxDepth: 3, MaxBytes: 64})
			So(errors.Is(err, ErrArchiveTooLarge), ShouldBeTrue)
		})

		Convey("garbage is a fetch error", func() {
			_, err := Extract([]byte("not a zip"), "x", Limits{MaxDepth: 3, MaxBytes: 1 << 20})
			So(errors.Is(err, ErrArchiveFetch), ShouldBeTrue)
		})
	})
}

func TestNormalize(t *testing.T) {
	n := NewNormalizer(testClock)

	Convey("Legacy column layouts are mapped", t, func() {
		rows, err := n.Normalize([]byte(legacyCSV), "legacy")
		So(err, ShouldBeNil)
		So(rows, ShouldHaveLength, 2)

		first := rows[0]
		So(*first.TripID, ShouldEqual, "legacy_0")
		So(*first.TripDuration, ShouldEqual, int64(300))
		So(*first.StartStationID, ShouldEqual, int64(268))
		So(*first.BikeID, ShouldEqual, int64(22285))
		So(*first.MemberCasual, ShouldEqual, "member")
		So(*first.RiderAge, ShouldEqual, int64(58))
		So(*first.BikeType, ShouldEqual, "unknown")
		So(first.SourceType, ShouldEqual, "historical")
		So(first.IngestedAt.Equal(testNow), ShouldBeTrue)

		second := rows[1]
		So(*second.TripDuration, ShouldEqual, int64(600))
		So(*second.MemberCasual, ShouldEqual, "casual")
		So(*second.BikeID, ShouldEqual, SurrogateBikeID("legacy_1"))
		So(second.RiderAge, ShouldBeNil)
	})

	Convey("Modern column layouts are mapped", t, func() {
		rows, err := n.Normalize([]byte(modernCSV), "modern")
		So(err, ShouldBeNil)
		So(rows, ShouldHaveLength, 3)
		So(*rows[0].TripID, ShouldEqual, "A1")
		So(*rows[0].BikeType, ShouldEqual, "electric_bike")
		So(*rows[0].StartStationID, ShouldEqual, int64(5329))
		So(*rows[0].TripDuration, ShouldEqual, int64(720))
		So(rows[1].StartStationID, ShouldBeNil)
		So(*rows[1].TripDuration, ShouldEqual, int64(450))
		So(*rows[1].MemberCasual, ShouldEqual, "unknown")
	})

	Convey("Surrogate bike ids are stable and above the real range", t, func() {
		So(SurrogateBikeID("abc"), ShouldEqual, SurrogateBikeID("abc"))
		So(SurrogateBikeID("abc"), ShouldBeGreaterThan, int64(surrogateBikeBase))
	})

	Convey("Header normalization", t, func() {
		So(ColumnName(" Start Station ID "), ShouldEqual, "start_station_id")
		So(ColumnName("\ufeffTrip Duration"), ShouldEqual, "trip_duration")
	})

	Convey("An empty file has no rows", t, func() {
		rows, err := n.Normalize(nil, "empty")
		So(err, ShouldBeNil)
		So(rows, ShouldBeEmpty)
	})
}

func TestManifest(t *testing.T) {
	Convey("Given a manifest store", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		ms := NewManifestStore(store, histBucket, testClock, logger.Nop())

		Convey("a missing manifest is empty", func() {
			m, err := ms.Load(ctx)
			So(err, ShouldBeNil)
			So(m.Archives, ShouldBeEmpty)
			So(m.Status("a.zip"), ShouldEqual, types.ArchiveUnseen)
		})

		Convey("a corrupt manifest is empty", func() {
			So(store.Put(ctx, histBucket, ManifestKey, []byte("][")), ShouldBeNil)
			m, err := ms.Load(ctx)
			So(err, ShouldBeNil)
			So(m.Archives, ShouldBeEmpty)
		})

		Convey("entries move forward and processed clears the staged key", func() {
			So(ms.Advance(ctx, "a.zip", "a", types.ArchivePending, "pending/archive=a/x.parquet"), ShouldBeNil)
			m, _ := ms.Load(ctx)
			So(m.Done("a.zip"), ShouldBeTrue)
			e, ok := m.ByStagedKey("pending/archive=a/x.parquet")
			So(ok, ShouldBeTrue)
			So(e.UpdatedAt.Equal(testNow), ShouldBeTrue)

			So(ms.Advance(ctx, "a.zip", "", types.ArchiveProcessed, "ignored"), ShouldBeNil)
			m, _ = ms.Load(ctx)
			So(m.Archives["a.zip"].StagedKey, ShouldEqual, "")
			So(m.Archives["a.zip"].Slug, ShouldEqual, "a")

			err := ms.Advance(ctx, "a.zip", "a", types.ArchivePending, "again")
			So(errors.Is(err, ErrInvalidTransition), ShouldBeTrue)
			m, _ = ms.Load(ctx)
			So(m.Status("a.zip"), ShouldEqual, types.ArchiveProcessed)
		})
	})
}

func TestStager(t *testing.T) {
	Convey("Given two remote archives, one already processed", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		archive := zipOf([2]string{"trips.csv", modernCSV})
		So(store.Put(ctx, remoteBucket, "202305-citibike-tripdata.zip", archive), ShouldBeNil)
		So(store.Put(ctx, remoteBucket, "202306-citibike-tripdata.zip", archive), ShouldBeNil)

		ms := NewManifestStore(store, histBucket, testClock, logger.Nop())
		So(ms.Advance(ctx, "202305-citibike-tripdata.zip", "202305_citibike_tripdata", types.ArchiveProcessed, ""),
			ShouldBeNil)

		stager := NewStager(NewStoreSource(store, remoteBucket, ""), store, histBucket, ms,
			WithStageWorkers(2), WithStageClock(testClock), WithStageLogger(logger.Nop()))

		Convey("only the unseen archive is staged", func() {
			res, err := stager.Run(ctx)
			So(err, ShouldBeNil)
			So(res.Skipped, ShouldResemble, []string{"202305-citibike-tripdata.zip"})
			So(res.Staged, ShouldHaveLength, 1)
			So(res.Failed, ShouldBeEmpty)

			pending, _ := store.List(ctx, histBucket, PendingPrefix)
			So(pending, ShouldHaveLength, 1)
			So(pending[0].Key, ShouldEqual, res.Staged[0].StagedKey)
			So(pending[0].Key, ShouldStartWith, "pending/archive=202306_citibike_tripdata/historical_202306_citibike_tripdata_")

			data, _ := store.Get(ctx, histBucket, pending[0].Key)
			rows, err := dataset.Decode[model.TripRecord](data)
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 2)

			Convey("a rerun stages nothing new", func() {
				res, err := stager.Run(ctx)
				So(err, ShouldBeNil)
				So(res.Staged, ShouldBeEmpty)
				So(res.Skipped, ShouldHaveLength, 2)
				pending, _ := store.List(ctx, histBucket, PendingPrefix)
				So(pending, ShouldHaveLength, 1)
			})
		})
	})

	Convey("Given a broken archive", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		So(store.Put(ctx, remoteBucket, "202307-citibike-tripdata.zip", []byte("truncated")), ShouldBeNil)
		So(store.Put(ctx, remoteBucket, "202308-citibike-tripdata.zip", zipOf([2]string{"readme.txt", "x"})), ShouldBeNil)
		ms := NewManifestStore(store, histBucket, testClock, logger.Nop())
		stager := NewStager(NewStoreSource(store, remoteBucket, ""), store, histBucket, ms,
			WithStageClock(testClock), WithStageLogger(logger.Nop()))

		res, err := stager.Run(ctx)
		So(err, ShouldBeNil)

		Convey("the failure is recorded and the archive stays unseen", func() {
			So(res.Failed, ShouldContainKey, "202307-citibike-tripdata.zip")
			m, _ := ms.Load(ctx)
			So(m.Status("202307-citibike-tripdata.zip"), ShouldEqual, types.ArchiveUnseen)
		})

		Convey("an archive without trips is marked processed without staging", func() {
			So(res.Empty, ShouldResemble, []string{"202308-citibike-tripdata.zip"})
			m, _ := ms.Load(ctx)
			So(m.Status("202308-citibike-tripdata.zip"), ShouldEqual, types.ArchiveProcessed)
			pending, _ := store.List(ctx, histBucket, PendingPrefix)
			So(pending, ShouldBeEmpty)
		})
	})
}

// stallingSource blocks every fetch until the caller gives up.
type stallingSource struct {
	archives []RemoteArchive
	started  chan struct{}
	once     sync.Once
}

func (s *stallingSource) List(context.Context) ([]RemoteArchive, error) { return s.archives, nil }

func (s *stallingSource) Fetch(ctx context.Context, _ string) ([]byte, error) {
	s.once.Do(func() { close(s.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

// manifestWriteFails rejects writes of the manifest document.
type manifestWriteFails struct {
	*repository.MemoryStore
}

func (f manifestWriteFails) Put(ctx context.Context, bucket, key string, data []byte) error {
	if key == ManifestKey {
		return fmt.Errorf("%w: manifest write", repository.ErrTransient)
	}
	return f.MemoryStore.Put(ctx, bucket, key, data)
}

func TestStagerPerRunCap(t *testing.T) {
	Convey("Given two unseen archives and a cap of one per pass", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		archive := zipOf([2]string{"trips.csv", modernCSV})
		So(store.Put(ctx, remoteBucket, "202305-citibike-tripdata.zip", archive), ShouldBeNil)
		So(store.Put(ctx, remoteBucket, "202306-citibike-tripdata.zip", archive), ShouldBeNil)

		ms := NewManifestStore(store, histBucket, testClock, logger.Nop())
		stager := NewStager(NewStoreSource(store, remoteBucket, ""), store, histBucket, ms,
			WithMaxArchives(1), WithStageClock(testClock), WithStageLogger(logger.Nop()))

		first, err := stager.Run(ctx)
		So(err, ShouldBeNil)
		So(first.Staged, ShouldHaveLength, 1)
		So(first.Staged[0].Name, ShouldEqual, "202305-citibike-tripdata.zip")

		second, err := stager.Run(ctx)
		So(err, ShouldBeNil)
		So(second.Staged, ShouldHaveLength, 1)
		So(second.Staged[0].Name, ShouldEqual, "202306-citibike-tripdata.zip")
		So(second.Skipped, ShouldResemble, []string{"202305-citibike-tripdata.zip"})

		third, err := stager.Run(ctx)
		So(err, ShouldBeNil)
		So(third.Staged, ShouldBeEmpty)
		So(third.Skipped, ShouldHaveLength, 2)

		m, _ := ms.Load(ctx)
		So(m.Status("202306-citibike-tripdata.zip"), ShouldEqual, types.ArchivePending)
		pending, _ := store.List(ctx, histBucket, PendingPrefix)
		So(pending, ShouldHaveLength, 2)
	})
}

func TestStagerCancellation(t *testing.T) {
	Convey("Given a download in flight", t, func() {
		store := repository.NewMemoryStore()
		ms := NewManifestStore(store, histBucket, testClock, logger.Nop())
		src := &stallingSource{
			archives: []RemoteArchive{{Key: "202309-citibike-tripdata.zip", Name: "202309-citibike-tripdata.zip", Size: 10}},
			started:  make(chan struct{}),
		}
		stager := NewStager(src, store, histBucket, ms, WithStageClock(testClock), WithStageLogger(logger.Nop()))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-src.started
			cancel()
		}()

		res, err := stager.Run(ctx)

		Convey("cancelling it stages nothing and leaves the archive unseen", func() {
			if err != nil {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			}
			So(res.Staged, ShouldBeEmpty)

			m, err := ms.Load(context.Background())
			So(err, ShouldBeNil)
			So(m.Status("202309-citibike-tripdata.zip"), ShouldEqual, types.ArchiveUnseen)

			pending, _ := store.List(context.Background(), histBucket, PendingPrefix)
			So(pending, ShouldBeEmpty)
		})
	})
}

func TestStagerManifestFailure(t *testing.T) {
	Convey("Given a manifest that cannot be written", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		So(store.Put(ctx, remoteBucket, "202310-citibike-tripdata.zip", zipOf([2]string{"trips.csv", modernCSV})),
			ShouldBeNil)
		ms := NewManifestStore(manifestWriteFails{store}, histBucket, testClock, logger.Nop())
		stager := NewStager(NewStoreSource(store, remoteBucket, ""), manifestWriteFails{store}, histBucket, ms,
			WithStageClock(testClock), WithStageLogger(logger.Nop()))

		res, err := stager.Run(ctx)
		So(err, ShouldBeNil)

		Convey("the staged batch is removed and the archive stays unseen", func() {
			So(res.Failed, ShouldContainKey, "202310-citibike-tripdata.zip")
			pending, _ := store.List(ctx, histBucket, PendingPrefix)
			So(pending, ShouldBeEmpty)

			m, _ := NewManifestStore(store, histBucket, testClock, logger.Nop()).Load(ctx)
			So(m.Status("202310-citibike-tripdata.zip"), ShouldEqual, types.ArchiveUnseen)
		})

		Convey("a later pass stages exactly one batch", func() {
			healthy := NewManifestStore(store, histBucket, testClock, logger.Nop())
			again := NewStager(NewStoreSource(store, remoteBucket, ""), store, histBucket, healthy,
				WithStageClock(testClock), WithStageLogger(logger.Nop()))
			res, err := again.Run(ctx)
			So(err, ShouldBeNil)
			So(res.Staged, ShouldHaveLength, 1)
			pending, _ := store.List(ctx, histBucket, PendingPrefix)
			So(pending, ShouldHaveLength, 1)
		})
	})
}

func TestBronzeLoader(t *testing.T) {
	Convey("Given staged batches", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		ms := NewManifestStore(store, histBucket, testClock, logger.Nop())
		loader := NewBronzeLoader(store, histBucket, bronzeBucket, ms, logger.Nop())

		rows, err := NewNormalizer(testClock).Normalize([]byte(modernCSV), "m")
		So(err, ShouldBeNil)
		good, _ := dataset.Encode(rows)
		empty, _ := dataset.Encode([]model.TripRecord{})
		goodKey := PendingKey("good", testNow)
		emptyKey := PendingKey("empty", testNow)
		badKey := "pending/archive=bad/historical_bad.parquet"
		So(store.Put(ctx, histBucket, goodKey, good), ShouldBeNil)
		So(store.Put(ctx, histBucket, emptyKey, empty), ShouldBeNil)
		So(store.Put(ctx, histBucket, badKey, []byte("garbage")), ShouldBeNil)
		So(ms.Advance(ctx, "good.zip", "good", types.ArchivePending, goodKey), ShouldBeNil)

		v, err := loader.ValidatePending(ctx)
		So(err, ShouldBeNil)

		Convey("undecodable batches are invalid", func() {
			So(v.Invalid, ShouldResemble, []string{badKey})
			So(v.Valid, ShouldHaveLength, 2)
		})

		Convey("loading writes bronze but leaves pending batches in place", func() {
			load, err := loader.LoadToBronze(ctx, v.Valid)
			So(err, ShouldBeNil)
			So(load.Pending, ShouldHaveLength, 2)
			So(load.Bronze, ShouldHaveLength, 1)
			So(load.Bronze[0].Key, ShouldEqual, "historical/historical_good_20250301T120000Z/historical_good_20250301T120000Z.parquet")

			_, err = store.Get(ctx, histBucket, goodKey)
			So(err, ShouldBeNil)
			m, _ := ms.Load(ctx)
			So(m.Status("good.zip"), ShouldEqual, types.ArchivePending)

			Convey("reloading overwrites the same bronze object", func() {
				again, err := loader.LoadToBronze(ctx, v.Valid)
				So(err, ShouldBeNil)
				So(again.Bronze[0].Key, ShouldEqual, load.Bronze[0].Key)
				bronze, _ := store.List(ctx, bronzeBucket, BronzePrefix)
				So(bronze, ShouldHaveLength, 1)
			})

			Convey("completing archives pending and marks the manifest", func() {
				So(loader.Complete(ctx, load.Pending), ShouldBeNil)

				_, err = store.Get(ctx, histBucket, goodKey)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				_, err = store.Get(ctx, histBucket, ProcessedKey(goodKey))
				So(err, ShouldBeNil)
				_, err = store.Get(ctx, histBucket, ProcessedKey(emptyKey))
				So(err, ShouldBeNil)
				So(strings.HasPrefix(ProcessedKey(goodKey), ProcessedPrefix+"archive=good/"), ShouldBeTrue)

				m, _ := ms.Load(ctx)
				So(m.Status("good.zip"), ShouldEqual, types.ArchiveProcessed)
				So(m.Archives["good.zip"].StagedKey, ShouldEqual, "")

				Convey("and a retried completion is harmless", func() {
					So(loader.Complete(ctx, load.Pending), ShouldBeNil)
				})
			})
		})
	})
}
