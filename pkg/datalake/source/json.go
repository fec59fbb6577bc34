package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	model "github.com/tigerroll/datalake-export/pkg/datalake/core/domain/model"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/exception"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/logger"
)

// Schemas understood by JSONFileSource.
const (
	SchemaDataPoint = "datapoint"
	SchemaGeneric   = "generic"
)

// JSONFileSource reads a JSON array from a file. With the datapoint schema every element is
// decoded as a model.DataPoint; with the generic schema every element becomes a record whose
// fields keep the order of the object's keys and whose "id" key becomes the record id.
type JSONFileSource struct {
	Path   string
	Schema string
}

// NewJSONFileSource validates props and creates the source.
func NewJSONFileSource(props Properties) (*JSONFileSource, error) {
	if props.Path == "" {
		return nil, exception.NewBatchErrorf("source", "json source requires the 'path' property")
	}
	schema := strings.ToLower(props.Schema)
	if schema == "" {
		schema = SchemaDataPoint
	}
	if schema != SchemaDataPoint && schema != SchemaGeneric {
		return nil, exception.NewBatchErrorf("source", "json source: unknown schema '%s'", props.Schema)
	}
	return &JSONFileSource{Path: props.Path, Schema: schema}, nil
}

func (s *JSONFileSource) Read(ctx context.Context) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, exception.NewBatchError("source", fmt.Sprintf("failed to open %s", s.Path), err, false, false)
	}
	defer f.Close()

	var records []model.Record
	if s.Schema == SchemaDataPoint {
		var points []model.DataPoint
		if err := json.NewDecoder(f).Decode(&points); err != nil {
			return nil, exception.NewBatchError("source", fmt.Sprintf("failed to decode %s", s.Path), err, false, false)
		}
		records = toRecords(points)
	} else {
		records, err = decodeGeneric(f)
		if err != nil {
			return nil, exception.NewBatchError("source", fmt.Sprintf("failed to decode %s", s.Path), err, false, false)
		}
	}
	logger.Infof("Read %d records from %s", len(records), s.Path)
	return records, nil
}

func decodeGeneric(r io.Reader) ([]model.Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}
	var records []model.Record
	for dec.More() {
		rec, err := decodeObject(dec)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}
	return records, nil
}

func decodeObject(dec *json.Decoder) (model.Record, error) {
	var rec model.Record
	if err := expectDelim(dec, '{'); err != nil {
		return rec, err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return rec, err
		}
		name, _ := tok.(string)
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return rec, fmt.Errorf("field %q: %w", name, err)
		}
		if strings.EqualFold(name, "id") {
			rec.ID = fmt.Sprint(value)
			continue
		}
		rec.Fields = append(rec.Fields, model.Field{Name: name, Value: scalar(value)})
	}
	return rec, expectDelim(dec, '}')
}

// scalar narrows json.Number to int64 when integral and float64 otherwise.
func scalar(v interface{}) interface{} {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}
