package dataset

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/bikeflow/internal/domain/model"
)

func TestParquetCodec(t *testing.T) {
	Convey("Given scored records with optional fields", t, func() {
		start := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
		rows := []model.ScoredRecord{
			{
				TripID:       model.Ptr("t1"),
				StartTime:    model.Ptr(start),
				TripDuration: model.Ptr(int64(300)),
				SourceType:   "realtime",
				QualityScore: 1,
				QualityBand:  "EXCELLENT",
			},
			{
				TripID:          model.Ptr("t2"),
				SourceType:      "realtime",
				QualityScore:    0.55,
				QualityBand:     "POOR",
				SchemaPenalty:   20,
				ValidityPenalty: 25,
			},
		}

		Convey("Encode and Decode preserve nil and present values", func() {
			data, err := Encode(rows)
			So(err, ShouldBeNil)

			got, err := Decode[model.ScoredRecord](data)
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 2)
			So(*got[0].TripID, ShouldEqual, "t1")
			So(got[0].StartTime.Equal(start), ShouldBeTrue)
			So(*got[0].TripDuration, ShouldEqual, int64(300))
			So(got[1].StartTime, ShouldBeNil)
			So(got[1].TripDuration, ShouldBeNil)
			So(got[1].ValidityPenalty, ShouldEqual, 25)
		})

		Convey("Columns lists the schema", func() {
			data, err := Encode(rows)
			So(err, ShouldBeNil)
			cols, err := Columns(data)
			So(err, ShouldBeNil)
			So(cols, ShouldContain, "trip_id")
			So(cols, ShouldContain, "quality_band")
		})
	})

	Convey("Decoding garbage fails with ErrDecode", t, func() {
		_, err := Decode[model.TripRecord]([]byte("not parquet at all"))
		So(errors.Is(err, ErrDecode), ShouldBeTrue)
	})

	Convey("An empty payload decodes to no rows", t, func() {
		got, err := Decode[model.TripRecord](nil)
		So(err, ShouldBeNil)
		So(got, ShouldBeEmpty)
	})
}

func TestDecodeJSONRows(t *testing.T) {
	Convey("Given bronze JSON payloads", t, func() {
		Convey("a single object decodes to one row with json.Number values", func() {
			rows, err := DecodeJSONRows([]byte(`{"trip_id":"a","rider_age":28}`))
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 1)
			So(rows[0]["rider_age"], ShouldEqual, json.Number("28"))
		})

		Convey("an array decodes to every element", func() {
			rows, err := DecodeJSONRows([]byte(` [{"trip_id":"a"},{"trip_id":"b"}] `))
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 2)
		})

		Convey("newline-delimited objects decode in order", func() {
			rows, err := DecodeJSONRows([]byte("{\"trip_id\":\"a\"}\n{\"trip_id\":\"b\"}\n"))
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 2)
			So(rows[1]["trip_id"], ShouldEqual, "b")
		})

		Convey("blank input is empty", func() {
			rows, err := DecodeJSONRows([]byte("  \n"))
			So(err, ShouldBeNil)
			So(rows, ShouldBeEmpty)
		})

		Convey("malformed input fails", func() {
			_, err := DecodeJSONRows([]byte(`{"trip_id":`))
			So(errors.Is(err, ErrDecode), ShouldBeTrue)
		})
	})
}

func TestDecodeRows(t *testing.T) {
	Convey("DecodeRows dispatches on the key extension", t, func() {
		data, err := Encode([]model.TripRecord{{TripID: model.Ptr("h1"), SourceType: "historical"}})
		So(err, ShouldBeNil)

		rows, err := DecodeRows("historical/x/x.parquet", data, model.TripRecord.Row)
		So(err, ShouldBeNil)
		So(rows, ShouldHaveLength, 1)
		So(rows[0]["trip_id"], ShouldEqual, "h1")
		So(rows[0]["source_type"], ShouldEqual, "historical")

		_, err = DecodeRows("x.csv", data, model.TripRecord.Row)
		So(errors.Is(err, ErrUnsupported), ShouldBeTrue)
	})
}
