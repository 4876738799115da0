package historical

import (
	"archive/zip"
	"bytes"
	"time"
)

const (
	histBucket   = "historical"
	bronzeBucket = "bronze"
	remoteBucket = "tripdata"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

// zipOf builds an in-memory zip from name/content pairs.
func zipOf(files ...[2]string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f[0])
		if err != nil {
			panic(err)
		}
		if _, err := w.Write([]byte(f[1])); err != nil {
			panic(err)
		}
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

const legacyCSV = `"tripduration","starttime","stoptime","start station id","end station id","bikeid","usertype","birth year"
300,"2016-01-01 00:00:41","2016-01-01 00:05:41",268,3002,22285,"Subscriber",1958
,"2016-01-01 00:10:00","2016-01-01 00:20:00",476,498,,"Customer",
600,,"2016-01-01 00:30:00",1,2,3,"Subscriber",1980
`

const modernCSV = `ride_id,rideable_type,started_at,ended_at,start_station_id,end_station_id,member_casual
A1,Electric_Bike,2023-05-01 08:00:00,2023-05-01 08:12:00,5329.03,5450.04,member
A2,classic_bike,2023-05-01 09:00:00,2023-05-01 09:07:30,,6140.05,weird
A1,classic_bike,2023-05-01 10:00:00,2023-05-01 10:03:00,5329.03,5329.03,casual
`
