package delivery_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/datalake-export/pkg/datalake/core/domain/model"
	"github.com/tigerroll/datalake-export/pkg/datalake/delivery"
)

func TestJSONSerializer_DataPoint(t *testing.T) {
	dp := model.DataPoint{
		ID: "id", Category: "category", Concept: "concept", MacroRegion: "macroRegion", Region: "region",
		ReportYear: 2020, RowID: 1, Unit: "unit", Value: 22.0, Vintage: "vintage",
	}

	out, err := delivery.NewJSONSerializer().Serialize([]model.Record{dp.ToRecord()})
	require.NoError(t, err)
	assert.Equal(t,
		`[{"id":"id","category":"category","concept":"concept","macroRegion":"macroRegion","region":"region",`+
			`"reportYear":2020,"rowId":1,"unit":"unit","value":22.0,"vintage":"vintage"}]`,
		string(out))
}

func TestJSONSerializer_OmitsDefaults(t *testing.T) {
	rec := model.NewRecord("", "Name", "", "Count", 0, "Flag", false, "Missing", nil, "Other", "x")

	out, err := delivery.NewJSONSerializer().Serialize([]model.Record{rec, model.NewRecord("2")})
	require.NoError(t, err)
	assert.Equal(t, `[{"other":"x"},{"id":"2"}]`, string(out))
}

func TestJSONSerializer_TimeLayout(t *testing.T) {
	rec := model.NewRecord("1", "AsOf", time.Date(2024, 5, 1, 9, 30, 15, 500, time.UTC))

	out, err := delivery.NewJSONSerializer().Serialize([]model.Record{rec})
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"1","asOf":"2024-05-01T09:30:15"}]`, string(out))
}

func TestJSONSerializer_NestedValues(t *testing.T) {
	s := delivery.NewJSONSerializer()

	ok := model.NewRecord("1", "Meta", map[string]interface{}{
		"Zeta":  "z",
		"Alpha": map[string]interface{}{"Inner": map[string]interface{}{"Leaf": 1}},
		"Tags":  []interface{}{"a", "b"},
	})
	out, err := s.Serialize([]model.Record{ok})
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"1","meta":{"alpha":{"inner":{"leaf":1}},"tags":["a","b"],"zeta":"z"}}]`, string(out))

	tooDeep := model.NewRecord("2", "Meta", map[string]interface{}{
		"A": map[string]interface{}{"B": map[string]interface{}{"C": map[string]interface{}{"D": 1}}},
	})
	_, err = s.Serialize([]model.Record{tooDeep})
	assert.ErrorContains(t, err, "max depth 5")
}

func TestJSONSerializer_Floats(t *testing.T) {
	rec := model.NewRecord("1", "Whole", 3.0, "Half", 1.5, "Small", float32(0.25), "Negative", -7.0, "Large", 1e20)

	out, err := delivery.NewJSONSerializer().Serialize([]model.Record{rec})
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"1","whole":3.0,"half":1.5,"small":0.25,"negative":-7.0,"large":100000000000000000000}]`, string(out))
}

func TestJSONSerializer_UnsupportedValue(t *testing.T) {
	_, err := delivery.NewJSONSerializer().Serialize([]model.Record{model.NewRecord("1", "Value", math.NaN())})
	assert.Error(t, err)
}

func TestCamelCase(t *testing.T) {
	cases := map[string]string{
		"MacroRegion": "macroRegion",
		"ID":          "id",
		"RowId":       "rowId",
		"URLValue":    "urlValue",
		"value":       "value",
		"A":           "a",
		"":            "",
	}
	for in, want := range cases {
		assert.Equal(t, want, delivery.CamelCase(in), in)
	}
}
