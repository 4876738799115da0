// Package reference provides the station coordinate lookup used by scoring.
package reference

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/okian/bikeflow/internal/domain/scoring"
	"github.com/okian/bikeflow/pkg/logger"
)

const stationsKey = "stations"

var ErrMalformedReference = errors.New("malformed station reference")

// Loader fetches the raw station reference CSV.
type Loader func(ctx context.Context) ([]byte, error)

// FileLoader reads the reference from a local path. An empty path yields an
// empty reference.
func FileLoader(path string) Loader {
	return func(context.Context) ([]byte, error) {
		if path == "" {
			return nil, nil
		}
		return os.ReadFile(path)
	}
}

// Stations is a station lookup that reloads its table once the TTL expires.
type Stations struct {
	load  Loader
	ttl   time.Duration
	cache *cache.Cache
	log   logger.Logger
}

// New creates a cached lookup. A non-positive ttl caches forever.
func New(load Loader, ttl time.Duration) *Stations {
	expiration := ttl
	if expiration <= 0 {
		expiration = cache.NoExpiration
	}
	return &Stations{
		load:  load,
		ttl:   expiration,
		cache: cache.New(expiration, 2*max(ttl, time.Minute)),
		log:   logger.Default().Named("reference"),
	}
}

// Snapshot returns the current table, loading it when absent or expired. Load
// failures degrade to an empty table so scoring skips resolution penalties.
func (s *Stations) Snapshot(ctx context.Context) scoring.Stations {
	if v, ok := s.cache.Get(stationsKey); ok {
		return v.(scoring.Stations)
	}

	data, err := s.load(ctx)
	if err != nil {
		s.log.Warn(ctx, "station reference unavailable", logger.Error(err))
		return scoring.Stations{}
	}
	table, err := ParseCSV(bytes.NewReader(data))
	if err != nil {
		s.log.Warn(ctx, "station reference unreadable", logger.Error(err))
		return scoring.Stations{}
	}
	s.cache.Set(stationsKey, table, s.ttl)
	s.log.Debug(ctx, "station reference loaded", logger.Int("stations", len(table)))
	return table
}

// Invalidate drops the cached table.
func (s *Stations) Invalidate() { s.cache.Delete(stationsKey) }

// Lookup implements scoring.StationLookup.
func (s *Stations) Lookup(id int64) (scoring.Coord, bool) {
	return s.Snapshot(context.Background()).Lookup(id)
}

// Len implements scoring.StationLookup.
func (s *Stations) Len() int { return s.Snapshot(context.Background()).Len() }

// ParseCSV reads a header row followed by station rows. Recognised headers are
// station_id (or id), lat (or latitude) and lon (or lng, longitude).
// Rows with unparseable values are skipped.
func ParseCSV(r io.Reader) (scoring.Stations, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return scoring.Stations{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReference, err)
	}

	idCol, latCol, lonCol := -1, -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "station_id", "id":
			idCol = i
		case "lat", "latitude":
			latCol = i
		case "lon", "lng", "longitude":
			lonCol = i
		}
	}
	if idCol < 0 || latCol < 0 || lonCol < 0 {
		return nil, fmt.Errorf("%w: header %v", ErrMalformedReference, header)
	}

	out := scoring.Stations{}
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedReference, err)
		}
		if len(rec) <= max(idCol, latCol, lonCol) {
			continue
		}
		id, err := strconv.ParseFloat(strings.TrimSpace(rec[idCol]), 64)
		if err != nil {
			continue
		}
		lat, err1 := strconv.ParseFloat(strings.TrimSpace(rec[latCol]), 64)
		lon, err2 := strconv.ParseFloat(strings.TrimSpace(rec[lonCol]), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out[int64(id)] = scoring.Coord{Lat: lat, Lon: lon}
	}
	return out, nil
}
