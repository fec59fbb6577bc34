package source

import (
	"context"

	model "github.com/tigerroll/datalake-export/pkg/datalake/core/domain/model"
)

// StaticSource yields a fixed list of data points. The default list is the single stub
// data point used when no dataset is configured.
type StaticSource struct {
	Points []model.DataPoint
}

// NewStaticSource creates the stub source.
func NewStaticSource() *StaticSource {
	return &StaticSource{Points: []model.DataPoint{{
		ID:          "id",
		Category:    "category",
		Concept:     "concept",
		MacroRegion: "macroRegion",
		Region:      "region",
		ReportYear:  2020,
		RowID:       1,
		Unit:        "unit",
		Value:       22.0,
		Vintage:     "vintage",
	}}}
}

func (s *StaticSource) Read(ctx context.Context) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return toRecords(s.Points), nil
}

func toRecords(points []model.DataPoint) []model.Record {
	records := make([]model.Record, len(points))
	for i, p := range points {
		records[i] = p.ToRecord()
	}
	return records
}
