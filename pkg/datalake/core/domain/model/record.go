// Package model defines the domain objects of the export pipeline:
// the records being exported, the session, the batch run announced to the data lake,
// the chunks it is delivered in and the persisted history of export runs.
package model

// Field is one named scalar value of a Record.
// Value holds a string, an integer, a float, a bool or a time.Time.
type Field struct {
	Name  string
	Value interface{}
}

// Record is one exported item. Fields keep the order in which the source produced them;
// the pipeline never inspects or changes their values.
type Record struct {
	ID     string
	Fields []Field
}

// NewRecord creates a Record from an id and alternating name/value pairs.
// A trailing name without value is ignored.
func NewRecord(id string, nameValues ...interface{}) Record {
	r := Record{ID: id, Fields: make([]Field, 0, len(nameValues)/2)}
	for i := 0; i+1 < len(nameValues); i += 2 {
		name, ok := nameValues[i].(string)
		if !ok {
			continue
		}
		r.Fields = append(r.Fields, Field{Name: name, Value: nameValues[i+1]})
	}
	return r
}

// Get returns the value of the named field.
func (r Record) Get(name string) (interface{}, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// DataPoint is the dashboard data point exported by default.
type DataPoint struct {
	ID          string  `json:"id" parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Category    string  `json:"category" parquet:"name=category, type=BYTE_ARRAY, convertedtype=UTF8"`
	Concept     string  `json:"concept" parquet:"name=concept, type=BYTE_ARRAY, convertedtype=UTF8"`
	MacroRegion string  `json:"macroRegion" parquet:"name=macro_region, type=BYTE_ARRAY, convertedtype=UTF8"`
	Region      string  `json:"region" parquet:"name=region, type=BYTE_ARRAY, convertedtype=UTF8"`
	ReportYear  int64   `json:"reportYear" parquet:"name=report_year, type=INT64"`
	RowID       int64   `json:"rowId" parquet:"name=row_id, type=INT64"`
	Unit        string  `json:"unit" parquet:"name=unit, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value       float32 `json:"value" parquet:"name=value, type=FLOAT"`
	Vintage     string  `json:"vintage" parquet:"name=vintage, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ToRecord converts the data point into a Record, keeping the declaration order of its fields.
func (d DataPoint) ToRecord() Record {
	return NewRecord(d.ID,
		"Category", d.Category,
		"Concept", d.Concept,
		"MacroRegion", d.MacroRegion,
		"Region", d.Region,
		"ReportYear", d.ReportYear,
		"RowId", d.RowID,
		"Unit", d.Unit,
		"Value", d.Value,
		"Vintage", d.Vintage,
	)
}
