// Package telemetry reads location-fix tables from CSV, XLSX, and point
// shapefiles and normalizes them into typed, time-ordered per-individual
// tracks ready for home-range geometry.
package telemetry

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tamarack-wildlife/settle-cli/internal/model"
)

// Schema binds the fix table's columns to their roles and declares the
// coordinate reference system the positions are expressed in.
type Schema struct {
	IDColumn   string
	TimeColumn string
	XColumn    string
	YColumn    string
	TimeLayout string // Go reference layout; default time.RFC3339
	CRS        string // EPSG identifier, e.g. "EPSG:32633"; declaration only
}

// Table is a raw tabular dataset: a header row plus data rows, all as
// strings. Readers produce it; Normalize binds and types it.
type Table struct {
	Header []string
	Rows   [][]string
	Source string
}

// FixSet is the normalized result: eligible tracks sorted by individual
// id, each track's fixes in ascending time order.
type FixSet struct {
	Tracks []model.Track
	CRS    string
	SRID   int

	RawRows            int
	DroppedIndividuals int
	DroppedFixes       int
}

// Empty reports whether no individual survived normalization. An empty
// set is a normal outcome for sparse data, not an error; callers must
// skip geometry and fitting entirely.
func (s *FixSet) Empty() bool {
	return len(s.Tracks) == 0
}

// Fixes returns the total fix count across all eligible tracks.
func (s *FixSet) Fixes() int {
	var n int
	for _, t := range s.Tracks {
		n += len(t.Fixes)
	}
	return n
}

// Individuals returns the eligible individual ids in track order.
func (s *FixSet) Individuals() []string {
	ids := make([]string, len(s.Tracks))
	for i, t := range s.Tracks {
		ids[i] = t.Individual
	}
	return ids
}

// geographicSRIDs are lat/lon systems whose degree units would make the
// planar area math meaningless.
var geographicSRIDs = map[int]bool{
	4326: true,
	4269: true,
	4267: true,
}

// Normalize binds the table to the schema, parses fixes, and drops every
// individual carrying fewer than model.MinTrackFixes fixes. A missing
// column or unparseable cell returns a *SchemaError. A set left empty by
// the threshold filter is returned with a nil error; check Empty().
func Normalize(tbl Table, schema Schema) (*FixSet, error) {
	return Tracks(tbl, schema, model.MinTrackFixes)
}

// Tracks is Normalize with a caller-chosen eligibility threshold. The
// settlement pipeline needs model.MinTrackFixes; dispersal accepts any
// individual with a release fix and at least one later fix.
func Tracks(tbl Table, schema Schema, minFixes int) (*FixSet, error) {
	log := zap.L().With(zap.String("component", "telemetry.normalize"))

	idIdx, err := columnIndex(tbl.Header, schema.IDColumn)
	if err != nil {
		return nil, err
	}
	timeIdx, err := columnIndex(tbl.Header, schema.TimeColumn)
	if err != nil {
		return nil, err
	}
	xIdx, err := columnIndex(tbl.Header, schema.XColumn)
	if err != nil {
		return nil, err
	}
	yIdx, err := columnIndex(tbl.Header, schema.YColumn)
	if err != nil {
		return nil, err
	}

	srid, err := ParseSRID(schema.CRS)
	if err != nil {
		return nil, err
	}
	if geographicSRIDs[srid] {
		log.Warn("declared CRS is geographic; planar areas assume metric projected coordinates",
			zap.String("crs", schema.CRS))
	}

	layout := schema.TimeLayout
	if layout == "" {
		layout = time.RFC3339
	}

	byID := make(map[string][]model.Fix)
	var order []string

	for i, row := range tbl.Rows {
		rowNum := i + 1

		id, err := cell(row, idIdx, schema.IDColumn, rowNum)
		if err != nil {
			return nil, err
		}
		if id == "" {
			return nil, &SchemaError{Column: schema.IDColumn, Row: rowNum, Reason: "empty individual id"}
		}

		ts, err := cell(row, timeIdx, schema.TimeColumn, rowNum)
		if err != nil {
			return nil, err
		}
		t, err := time.Parse(layout, ts)
		if err != nil {
			return nil, &SchemaError{Column: schema.TimeColumn, Row: rowNum, Value: ts, Reason: "unparseable timestamp"}
		}

		x, err := coord(row, xIdx, schema.XColumn, rowNum)
		if err != nil {
			return nil, err
		}
		y, err := coord(row, yIdx, schema.YColumn, rowNum)
		if err != nil {
			return nil, err
		}

		if _, seen := byID[id]; !seen {
			order = append(order, id)
		}
		byID[id] = append(byID[id], model.Fix{Individual: id, Time: t, X: x, Y: y})
	}

	set := &FixSet{CRS: schema.CRS, SRID: srid, RawRows: len(tbl.Rows)}

	sort.Strings(order)
	for _, id := range order {
		fixes := byID[id]
		if len(fixes) < minFixes {
			set.DroppedIndividuals++
			set.DroppedFixes += len(fixes)
			log.Debug("dropping individual below fix threshold",
				zap.String("individual", id),
				zap.Int("fixes", len(fixes)),
				zap.Int("min", minFixes))
			continue
		}
		// Ascending by time; ties keep input order.
		sort.SliceStable(fixes, func(a, b int) bool {
			return fixes[a].Time.Before(fixes[b].Time)
		})
		set.Tracks = append(set.Tracks, model.Track{Individual: id, Fixes: fixes})
	}

	if set.Empty() {
		log.Info("no eligible individuals after normalization",
			zap.Int("raw_rows", set.RawRows),
			zap.Int("dropped_individuals", set.DroppedIndividuals))
		return set, nil
	}

	log.Info("fix table normalized",
		zap.Int("individuals", len(set.Tracks)),
		zap.Int("fixes", set.Fixes()),
		zap.Int("dropped_individuals", set.DroppedIndividuals),
		zap.String("crs", set.CRS))

	return set, nil
}

// ParseSRID extracts the numeric SRID from an EPSG-style identifier.
// Accepts "32633" or "EPSG:32633" (case-insensitive); empty means
// undeclared and parses to 0.
func ParseSRID(crs string) (int, error) {
	s := strings.TrimSpace(crs)
	if s == "" {
		return 0, nil
	}
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		if !strings.EqualFold(s[:idx], "epsg") {
			return 0, &SchemaError{Value: crs, Reason: "unsupported CRS authority"}
		}
		s = s[idx+1:]
	}
	srid, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || srid <= 0 {
		return 0, &SchemaError{Value: crs, Reason: "invalid EPSG code"}
	}
	return srid, nil
}

// columnIndex resolves a named column against the header, ignoring case
// and surrounding whitespace.
func columnIndex(header []string, name string) (int, error) {
	if name == "" {
		return 0, &SchemaError{Reason: "column binding not configured"}
	}
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i, nil
		}
	}
	return 0, &SchemaError{Column: name, Reason: "column not found"}
}

func cell(row []string, idx int, column string, rowNum int) (string, error) {
	if idx >= len(row) {
		return "", &SchemaError{Column: column, Row: rowNum, Reason: "row too short"}
	}
	return strings.TrimSpace(row[idx]), nil
}

func coord(row []string, idx int, column string, rowNum int) (float64, error) {
	raw, err := cell(row, idx, column, rowNum)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &SchemaError{Column: column, Row: rowNum, Value: raw, Reason: "non-numeric coordinate"}
	}
	return v, nil
}
