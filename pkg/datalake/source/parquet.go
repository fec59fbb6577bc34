package source

import (
	"context"
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	model "github.com/tigerroll/datalake-export/pkg/datalake/core/domain/model"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/exception"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/logger"
)

// ParquetFileSource reads data points from a local parquet file written with the
// model.DataPoint schema.
type ParquetFileSource struct {
	Path        string
	Parallelism int64
}

// NewParquetFileSource validates props and creates the source.
func NewParquetFileSource(props Properties) (*ParquetFileSource, error) {
	if props.Path == "" {
		return nil, exception.NewBatchErrorf("source", "parquet source requires the 'path' property")
	}
	parallelism := props.Parallelism
	if parallelism < 1 {
		parallelism = 4
	}
	return &ParquetFileSource{Path: props.Path, Parallelism: parallelism}, nil
}

func (s *ParquetFileSource) Read(ctx context.Context) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fr, err := local.NewLocalFileReader(s.Path)
	if err != nil {
		return nil, exception.NewBatchError("source", fmt.Sprintf("failed to open %s", s.Path), err, false, false)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(model.DataPoint), s.Parallelism)
	if err != nil {
		return nil, exception.NewBatchError("source", fmt.Sprintf("failed to read parquet footer of %s", s.Path), err, false, false)
	}
	defer pr.ReadStop()

	points := make([]model.DataPoint, int(pr.GetNumRows()))
	if len(points) > 0 {
		if err := pr.Read(&points); err != nil {
			return nil, exception.NewBatchError("source", fmt.Sprintf("failed to read rows of %s", s.Path), err, false, false)
		}
	}
	logger.Infof("Read %d records from %s", len(points), s.Path)
	return toRecords(points), nil
}
