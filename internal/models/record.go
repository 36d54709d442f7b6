package models

// RecordKind is the logical table a metric row is stored under.
type RecordKind string

const (
	KindLteCuCp RecordKind = "lte_cu_cp"
	KindGnbCuCp RecordKind = "gnb_cu_cp"
	KindLteCuUp RecordKind = "lte_cu_up"
	KindGnbCuUp RecordKind = "gnb_cu_up"
	KindDu      RecordKind = "du"
)

// LegacyCellID is the reserved entity identifier of the LTE anchor cell. Every
// other identifier denotes an NR gNB cell.
const LegacyCellID = 1

// TimestampField is the column every metric file carries.
const TimestampField = "timestamp"

// MetricRecord is one parsed row of a simulator metric file.
type MetricRecord struct {
	Kind      RecordKind         `json:"kind"`
	Timestamp int64              `json:"timestamp"`
	CellID    int                `json:"cell_id"`
	Fields    map[string]float64 `json:"fields"`
	Source    string             `json:"source,omitempty"` // file the row came from
	Line      int                `json:"line,omitempty"`   // line of the row within Source
}

// Observation is the use-case specific view of the store returned to the agent.
type Observation struct {
	Timestamp int64            `json:"timestamp"`
	Columns   []string         `json:"columns"`
	Rows      []ObservationRow `json:"rows"`
}

// ObservationRow holds one entity's values, ordered like Observation.Columns.
type ObservationRow struct {
	Timestamp int64     `json:"timestamp"`
	CellID    int       `json:"cell_id"`
	Values    []float64 `json:"values"`
}
