// Package ingest loads the simulator's metric files into the run's store.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/spachava753/nsoran/internal/logging"
	"github.com/spachava753/nsoran/internal/models"
	"github.com/spachava753/nsoran/internal/store"
)

// family is one group of metric files sharing a naming convention.
type family struct {
	pattern string
	legacy  models.RecordKind
	nr      models.RecordKind
}

// Families are processed in this order on every pass.
var families = []family{
	{pattern: "cu-up-cell-*.txt", legacy: models.KindLteCuUp, nr: models.KindGnbCuUp},
	{pattern: "cu-cp-cell-*.txt", legacy: models.KindLteCuCp, nr: models.KindGnbCuCp},
	{pattern: "du-cell-*.txt", legacy: models.KindDu, nr: models.KindDu},
}

var cellIDPattern = regexp.MustCompile(`-cell-(\d+)\.txt$`)

// Extension adds use case specific records to an ingestion pass.
type Extension interface {
	IngestExtra(ctx context.Context, runDir string, batch *store.Batch, watermark int64) error
}

// Result summarizes one ingestion pass.
type Result struct {
	Watermark int64
	// Accepted counts the rows read at or after the watermark, including the
	// boundary rows that were already stored by an earlier pass.
	Accepted map[models.RecordKind]int
	// New counts the records this pass added to the store.
	New   map[models.RecordKind]int
	Files int
	// ExtensionErr is the error of the extension, whose writes were discarded.
	ExtensionErr error
}

// Total returns the number of accepted base records.
func (r Result) Total() int {
	n := 0
	for _, c := range r.Accepted {
		n += c
	}
	return n
}

// Ingestor runs ingestion passes against one store.
type Ingestor struct {
	store     *store.Store
	extension Extension
}

// New creates an ingestor. ext may be nil.
func New(s *store.Store, ext Extension) *Ingestor {
	return &Ingestor{store: s, extension: ext}
}

type parsedFile struct {
	path    string
	records []models.MetricRecord
}

// Ingest reads every metric file of runDir, stores the rows whose timestamp
// is at or after watermark and returns the advanced watermark. The store is
// held exclusively for the whole pass.
func (in *Ingestor) Ingest(ctx context.Context, runDir string, watermark int64) (Result, error) {
	res := Result{
		Watermark: watermark,
		Accepted:  map[models.RecordKind]int{},
		New:       map[models.RecordKind]int{},
	}

	var paths []string
	var fams []family
	for _, fam := range families {
		matches, err := filepath.Glob(filepath.Join(runDir, fam.pattern))
		if err != nil {
			return res, fmt.Errorf("listing %s: %w", fam.pattern, err)
		}
		for _, m := range matches {
			paths = append(paths, m)
			fams = append(fams, fam)
		}
	}
	res.Files = len(paths)

	parsed := make([]parsedFile, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			recs, err := parseFile(gctx, path, fams[i], watermark)
			if err != nil {
				return err
			}
			parsed[i] = parsedFile{path: path, records: recs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	batch, err := in.store.AcquireExclusive(ctx)
	if err != nil {
		return res, fmt.Errorf("acquiring metric store: %w", err)
	}
	defer batch.Release()

	maxTS := watermark
	for _, pf := range parsed {
		for _, rec := range pf.records {
			created, err := batch.Insert(ctx, rec)
			if err != nil {
				return res, fmt.Errorf("ingesting %s: %w", filepath.Base(pf.path), err)
			}
			res.Accepted[rec.Kind]++
			if created {
				res.New[rec.Kind]++
			}
			maxTS = max(maxTS, rec.Timestamp)
		}
	}

	if in.extension != nil {
		err := batch.Savepoint(ctx, "use_case", func() error {
			return in.extension.IngestExtra(ctx, runDir, batch, watermark)
		})
		if err != nil {
			slog.Warn("use case ingestion failed, keeping base records", "dir", runDir, "error", err)
			res.ExtensionErr = err
		}
	}

	if err := batch.Commit(); err != nil {
		return res, fmt.Errorf("committing metrics: %w", err)
	}

	res.Watermark = maxTS
	slog.Debug("ingestion pass finished", "dir", runDir, "files", res.Files, "accepted", res.Accepted, "new", res.New, "watermark", res.Watermark)
	return res, nil
}

// CellID extracts the entity identifier embedded in a metric file name.
func CellID(path string) (int, error) {
	m := cellIDPattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, fmt.Errorf("no cell id in file name %q", filepath.Base(path))
	}
	return strconv.Atoi(m[1])
}

// classify returns the record kind of a row of the family for a cell.
func (f family) classify(cellID int) models.RecordKind {
	if cellID == models.LegacyCellID {
		return f.legacy
	}
	return f.nr
}

func parseFile(ctx context.Context, path string, fam family, watermark int64) ([]models.MetricRecord, error) {
	cellID, err := CellID(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening metric file: %w", err)
	}
	defer f.Close()

	return ParseRecords(ctx, f, filepath.Base(path), fam.classify(cellID), cellID, watermark)
}

// ParseRecords reads a metric file with a header line and returns the rows
// whose timestamp is at or after watermark, each tagged with its source and
// line. Non numeric values are skipped; rows with a missing or malformed
// timestamp are dropped and logged at trace level.
func ParseRecords(ctx context.Context, r io.Reader, source string, kind models.RecordKind, cellID int, watermark int64) ([]models.MetricRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", source, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	tsCol := -1
	for i, name := range header {
		if name == models.TimestampField {
			tsCol = i
			break
		}
	}
	if tsCol < 0 {
		return nil, fmt.Errorf("%s has no %s column", source, models.TimestampField)
	}

	var out []models.MetricRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", source, err)
		}
		line, _ := cr.FieldPos(0)
		if len(row) != len(header) {
			slog.Log(ctx, logging.LevelTrace, "skipping short metric row", "file", source, "line", line)
			continue
		}

		ts, err := parseTimestamp(row[tsCol])
		if err != nil {
			slog.Log(ctx, logging.LevelTrace, "skipping metric row", "file", source, "line", line, "error", err)
			continue
		}
		if ts < watermark {
			continue
		}

		rec := models.MetricRecord{
			Kind:      kind,
			Timestamp: ts,
			CellID:    cellID,
			Fields:    make(map[string]float64, len(header)-1),
			Source:    source,
			Line:      line,
		}
		for i, name := range header {
			if i == tsCol || name == "" {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
			if err != nil {
				continue
			}
			rec.Fields[name] = v
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ts, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	return int64(f), nil
}
