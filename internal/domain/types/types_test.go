package types_test

import (
	"testing"

	types "github.com/okian/bikeflow/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBand(t *testing.T) {
	Convey("Given the quality bands", t, func() {
		Convey("Then ranks are strictly ordered best to worst", func() {
			for i := 1; i < len(types.Bands); i++ {
				So(types.Bands[i-1].Rank(), ShouldBeGreaterThan, types.Bands[i].Rank())
			}
			So(types.Band("BOGUS").Rank(), ShouldEqual, -1)
		})

		Convey("Then only EXCELLENT and GOOD are passing", func() {
			So(types.BandExcellent.Passing(), ShouldBeTrue)
			So(types.BandGood.Passing(), ShouldBeTrue)
			So(types.BandFair.Passing(), ShouldBeFalse)
			So(types.BandPoor.Passing(), ShouldBeFalse)
		})
	})
}

func TestSourceType(t *testing.T) {
	Convey("Given a source type", t, func() {
		Convey("Then matching ignores case and whitespace", func() {
			So(types.SourceHistorical.Matches(" Historical "), ShouldBeTrue)
			So(types.SourceHistorical.Matches("realtime"), ShouldBeFalse)
			So(types.SourceRealtime.Matches(""), ShouldBeFalse)
		})
	})
}

func TestArchiveStatus(t *testing.T) {
	Convey("Given the archive lifecycle", t, func() {
		Convey("Then it only moves forward", func() {
			So(types.ArchiveUnseen.CanAdvanceTo(types.ArchivePending), ShouldBeTrue)
			So(types.ArchivePending.CanAdvanceTo(types.ArchiveProcessed), ShouldBeTrue)
			So(types.ArchivePending.CanAdvanceTo(types.ArchivePending), ShouldBeTrue)
			So(types.ArchiveProcessed.CanAdvanceTo(types.ArchivePending), ShouldBeFalse)
			So(types.ArchiveProcessed.CanAdvanceTo(types.ArchiveUnseen), ShouldBeFalse)
		})
	})
}
