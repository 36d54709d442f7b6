// Package powersaving is the energy saving use case: an agent switches the
// NR cells of a seven gNB deployment on and off and is rewarded for
// throughput while paying for PRB usage and transmission errors.
package powersaving

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spachava753/nsoran/internal/action"
	"github.com/spachava753/nsoran/internal/config"
	"github.com/spachava753/nsoran/internal/environment"
	"github.com/spachava753/nsoran/internal/models"
	"github.com/spachava753/nsoran/internal/store"
)

const (
	// Name identifies the use case in env.yaml.
	Name = "power_saving"

	NumGNB    = action.BoolVectorWidth
	FirstCell = models.LegacyCellID + 1

	ControlFile = "es_actions_for_ns3.csv"
	ActionLog   = "EsActions.txt"
)

// KPM columns.
const (
	ColThroughput = "QosFlow.PdcpPduVolumeDL_Filter"
	ColPrbUsed    = "RRU.PrbUsedDl"
	ColSinrBin34  = "L1M.RS-SINR.Bin34"
	ColActiveUes  = "DRB.MeanActiveUeDl"
	Col64Qam      = "TB.TotNbrDlInitial.64Qam"
	ColDlErrors   = "TB.ErrTotalNbrDl.1"
	ColMcsBin1    = "CARR.PDSCHMCSDist.Bin1"
	ColBufferSize = "DRB.BufferSize.Qos"

	// ColThroughputPerPrb is derived at ingestion time.
	ColThroughputPerPrb = "nsoran.ThroughputPerPrb"
)

// StateColumns are the observation columns, in order.
var StateColumns = []string{
	ColThroughput,
	ColPrbUsed,
	ColSinrBin34,
	ColActiveUes,
	Col64Qam,
	ColDlErrors,
	ColMcsBin1,
	ColBufferSize,
	ColThroughputPerPrb,
}

var controlHeader = []string{models.TimestampField, "cellId", "hoAllowed"}

// UseCase implements environment.UseCase.
type UseCase struct {
	weights config.PowerSavingConfig
	space   action.Mapper
}

var _ environment.UseCase = (*UseCase)(nil)

// New returns the use case with the given reward weights.
func New(weights config.PowerSavingConfig) *UseCase {
	return &UseCase{
		weights: weights,
		space:   action.Mapper{Min: 0, Max: 1<<NumGNB - 1},
	}
}

// ActionSpace returns the mapper over flat action indices. An index encodes
// the on/off flags of all gNBs, most significant bit for the first cell.
func (u *UseCase) ActionSpace() action.Mapper {
	return u.space
}

func (u *UseCase) Schema() environment.ControlSchema {
	return environment.ControlSchema{
		ControlFile: ControlFile,
		ActionLog:   ActionLog,
		Header:      controlHeader,
	}
}

// ComputeAction accepts either one flag per gNB or a single flat index.
func (u *UseCase) ComputeAction(a models.Action) ([]models.Target, error) {
	var flags []bool
	switch len(a) {
	case NumGNB:
		flags = make([]bool, NumGNB)
		for i, v := range a {
			if v != 0 && v != 1 {
				return nil, fmt.Errorf("%w: flag %d for cell %d must be 0 or 1", models.ErrIndexOutOfRange, v, FirstCell+i)
			}
			flags[i] = v == 1
		}
	case 1:
		var err error
		if flags, err = u.space.IndexToBoolVector(a[0]); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("power saving action needs %d flags or one index, got %d values", NumGNB, len(a))
	}

	targets := make([]models.Target, NumGNB)
	for i, on := range flags {
		var v int64
		if on {
			v = 1
		}
		targets[i] = models.Target{int64(FirstCell + i), v}
	}
	return targets, nil
}

// Observe returns one row per gNB with the latest values of StateColumns.
// Cells that reported nothing since the watermark get zeros.
func (u *UseCase) Observe(ctx context.Context, r store.Reader, since int64) (models.Observation, error) {
	latest, err := u.latest(ctx, r, since, StateColumns)
	if err != nil {
		return models.Observation{}, err
	}

	obs := models.Observation{
		Columns: StateColumns,
		Rows:    make([]models.ObservationRow, NumGNB),
	}
	for i := range obs.Rows {
		cell := FirstCell + i
		row := models.ObservationRow{CellID: cell, Values: make([]float64, len(StateColumns))}
		if rec, ok := latest[cell]; ok {
			row.Timestamp = rec.Timestamp
			for j, col := range StateColumns {
				row.Values[j] = rec.Fields[col]
			}
			obs.Timestamp = max(obs.Timestamp, rec.Timestamp)
		}
		obs.Rows[i] = row
	}
	return obs, nil
}

// Reward sums, over the gNBs, weighted throughput minus weighted PRB usage
// and DL errors.
func (u *UseCase) Reward(ctx context.Context, r store.Reader, since int64) (float64, error) {
	latest, err := u.latest(ctx, r, since, []string{ColThroughput, ColPrbUsed, ColDlErrors})
	if err != nil {
		return 0, err
	}

	var reward float64
	for _, rec := range latest {
		reward += u.weights.ThroughputWeight*rec.Fields[ColThroughput] -
			u.weights.PrbWeight*rec.Fields[ColPrbUsed] -
			u.weights.ErrorWeight*rec.Fields[ColDlErrors]
	}
	return reward, nil
}

func (u *UseCase) latest(ctx context.Context, r store.Reader, since int64, cols []string) (map[int]models.MetricRecord, error) {
	recs, err := r.ReadSince(ctx, since, nil, cols)
	if err != nil {
		return nil, fmt.Errorf("reading power saving kpms: %w", err)
	}
	// Records carrying none of the columns must not shadow older values.
	recs = slices.DeleteFunc(recs, func(rec models.MetricRecord) bool { return len(rec.Fields) == 0 })

	out := make(map[int]models.MetricRecord, NumGNB)
	for _, rec := range store.Latest(recs) {
		if rec.CellID < FirstCell || rec.CellID >= FirstCell+NumGNB {
			continue
		}
		out[rec.CellID] = rec
	}
	return out, nil
}

// DerivedSource tags the records IngestExtra computes instead of reading them
// from a metric file.
const DerivedSource = "derived"

// IngestExtra derives the throughput per scheduled PRB of every cell and
// timestamp ingested in this pass and stores it as a DU record of
// DerivedSource, one per cell and timestamp.
func (u *UseCase) IngestExtra(ctx context.Context, runDir string, batch *store.Batch, watermark int64) error {
	recs, err := batch.ReadSince(ctx, watermark, nil, []string{ColThroughput, ColPrbUsed})
	if err != nil {
		return err
	}

	type key struct {
		ts   int64
		cell int
	}
	type pair struct {
		tput, prb       float64
		hasTput, hasPrb bool
	}
	var (
		order  []key
		byCell = make(map[key]*pair)
	)
	for _, rec := range recs {
		k := key{rec.Timestamp, rec.CellID}
		p, ok := byCell[k]
		if !ok {
			p = &pair{}
			byCell[k] = p
			order = append(order, k)
		}
		if v, ok := rec.Fields[ColThroughput]; ok {
			p.tput, p.hasTput = v, true
		}
		if v, ok := rec.Fields[ColPrbUsed]; ok {
			p.prb, p.hasPrb = v, true
		}
	}

	derived := 0
	for _, k := range order {
		p := byCell[k]
		if !p.hasTput || !p.hasPrb || p.prb <= 0 {
			continue
		}
		_, err := batch.Insert(ctx, models.MetricRecord{
			Kind:      models.KindDu,
			Timestamp: k.ts,
			CellID:    k.cell,
			Fields:    map[string]float64{ColThroughputPerPrb: p.tput / p.prb},
			Source:    DerivedSource,
		})
		if err != nil {
			return fmt.Errorf("storing throughput per prb: %w", err)
		}
		derived++
	}
	slog.Debug("derived power saving kpms", "dir", runDir, "rows", derived)
	return nil
}
