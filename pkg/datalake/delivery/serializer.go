package delivery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"
	"unicode"

	model "github.com/tigerroll/datalake-export/pkg/datalake/core/domain/model"
)

// Serializer encodes the records of one chunk into the upload payload.
type Serializer interface {
	Serialize(records []model.Record) ([]byte, error)
}

// JSONSerializer writes a compact JSON array of objects. Field names are lower camel case,
// fields holding their type's zero value are omitted and times use TimeLayout.
type JSONSerializer struct {
	TimeLayout string
	// MaxDepth bounds the nesting of the payload; the array itself is level 1.
	MaxDepth int
}

// NewJSONSerializer creates the serializer expected by the data lake.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{TimeLayout: "2006-01-02T15:04:05", MaxDepth: 5}
}

// Serialize encodes records in order.
func (s *JSONSerializer) Serialize(records []model.Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, r := range records {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := s.writeRecord(&buf, r); err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", i, r.ID, err)
		}
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (s *JSONSerializer) writeRecord(buf *bytes.Buffer, r model.Record) error {
	buf.WriteByte('{')
	first := true
	if r.ID != "" {
		if err := s.writeMember(buf, &first, "id", r.ID, 2); err != nil {
			return err
		}
	}
	for _, f := range r.Fields {
		if isDefault(f.Value) {
			continue
		}
		if err := s.writeMember(buf, &first, f.Name, f.Value, 2); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func (s *JSONSerializer) writeMember(buf *bytes.Buffer, first *bool, name string, value interface{}, depth int) error {
	if !*first {
		buf.WriteByte(',')
	}
	*first = false
	key, _ := json.Marshal(CamelCase(name))
	buf.Write(key)
	buf.WriteByte(':')
	return s.writeValue(buf, value, depth)
}

// writeValue encodes value found inside a container at nesting level depth.
func (s *JSONSerializer) writeValue(buf *bytes.Buffer, value interface{}, depth int) error {
	switch v := value.(type) {
	case time.Time:
		b, _ := json.Marshal(v.Format(s.TimeLayout))
		buf.Write(b)
		return nil
	case *time.Time:
		if v == nil {
			buf.WriteString("null")
			return nil
		}
		return s.writeValue(buf, *v, depth)
	case map[string]interface{}:
		if depth+1 > s.MaxDepth {
			return fmt.Errorf("nesting exceeds max depth %d", s.MaxDepth)
		}
		buf.WriteByte('{')
		first := true
		for _, k := range sortedKeys(v) {
			if isDefault(v[k]) {
				continue
			}
			if err := s.writeMember(buf, &first, k, v[k], depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []interface{}:
		if depth+1 > s.MaxDepth {
			return fmt.Errorf("nesting exceeds max depth %d", s.MaxDepth)
		}
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := s.writeValue(buf, item, depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case float32:
		if writeIntegralFloat(buf, float64(v)) {
			return nil
		}
	case float64:
		if writeIntegralFloat(buf, v) {
			return nil
		}
	}

	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// writeIntegralFloat writes whole floats with one fractional digit ("22.0") so they stay
// distinguishable from integers on the wire. Other floats are left to encoding/json.
func writeIntegralFloat(buf *bytes.Buffer, f float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) >= 1e15 {
		return false
	}
	buf.WriteString(strconv.FormatFloat(f, 'f', 1, 64))
	return true
}

// isDefault reports whether v is nil or the zero value of its type.
func isDefault(v interface{}) bool {
	if v == nil {
		return true
	}
	if t, ok := v.(time.Time); ok {
		return t.IsZero()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}
	return rv.IsZero()
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CamelCase lower-cases the leading run of capitals: "MacroRegion" -> "macroRegion",
// "ID" -> "id", "URLValue" -> "urlValue". Names not starting with a capital are unchanged.
func CamelCase(name string) string {
	runes := []rune(name)
	if len(runes) == 0 || !unicode.IsUpper(runes[0]) {
		return name
	}
	for i := 0; i < len(runes); i++ {
		if i == 1 && !unicode.IsUpper(runes[i]) {
			break
		}
		hasNext := i+1 < len(runes)
		if i > 0 && hasNext && !unicode.IsUpper(runes[i+1]) {
			if unicode.IsSpace(runes[i+1]) {
				runes[i] = unicode.ToLower(runes[i])
			}
			break
		}
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}
