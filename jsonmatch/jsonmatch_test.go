package jsonmatch_test

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cboone/outcheck/internal/fail"
	"github.com/cboone/outcheck/jsonmatch"
	"github.com/cboone/outcheck/match"
)

func failure(t *testing.T, err error) *fail.Failure {
	t.Helper()
	require.Error(t, err)
	var f *fail.Failure
	require.ErrorAs(t, err, &f)
	return f
}

func TestCompareJSON(t *testing.T) {
	tests := []struct {
		name     string
		actual   string
		expected any
		wantPath string
	}{
		{name: "object subset", actual: `{"a":1,"b":2}`, expected: map[string]any{"a": 1}},
		{name: "missing key", actual: `{"a":1}`, expected: map[string]any{"a": 1, "b": 2}, wantPath: "at $: missing key \"b\""},
		{name: "array exact", actual: `[1,2,3]`, expected: []any{1, 2, 3}},
		{name: "array longer", actual: `[1,2,3]`, expected: []any{1, 2}, wantPath: "at $: array length 3, expected 2"},
		{name: "regex leaf", actual: `{"x":"123"}`, expected: map[string]any{"x": `<RE>\d+`}},
		{name: "regex leaf mismatch", actual: `{"x":"12a"}`, expected: map[string]any{"x": `<RE>\d+`}, wantPath: "at $.x"},
		{name: "compiled regexp", actual: `["abc"]`, expected: []any{regexp.MustCompile(`a.c`)}},
		{name: "matcher", actual: `"v"`, expected: match.Exact("v")},
		{name: "log leaf", actual: `{"log":"2026-01-01 10:00:00.000 INFO  up"}`, expected: map[string]any{"log": "<LOG:INFO>up"}},
		{name: "float equals int", actual: `{"n":1.0}`, expected: map[string]any{"n": 1}},
		{name: "exponent", actual: `1e3`, expected: 1000},
		{name: "number differs", actual: `{"n":2}`, expected: map[string]any{"n": 1}, wantPath: "at $.n: numbers differ"},
		{name: "string vs number", actual: `{"n":"1"}`, expected: map[string]any{"n": 1}, wantPath: "at $.n: expected a number"},
		{name: "number vs string", actual: `{"n":1}`, expected: map[string]any{"n": "1"}, wantPath: "at $.n: expected a string"},
		{name: "bool", actual: `true`, expected: true},
		{name: "bool differs", actual: `false`, expected: true, wantPath: "at $: values differ"},
		{name: "null", actual: `{"a":null}`, expected: map[string]any{"a": nil}},
		{name: "null vs value", actual: `{"a":0}`, expected: map[string]any{"a": nil}, wantPath: "at $.a: expected null"},
		{name: "nested path", actual: `{"a":[{},{},{"b":"x"}]}`, expected: map[string]any{"a": []any{map[string]any{}, map[string]any{}, map[string]any{"b": "y"}}}, wantPath: "at $.a[2].b"},
		{name: "quoted key", actual: `{"a b":1}`, expected: map[string]any{"a b": 2}, wantPath: `at $["a b"]`},
		{name: "typed map and slice", actual: `{"xs":[1,2]}`, expected: map[string][]int{"xs": {1, 2}}},
		{name: "object vs array", actual: `[]`, expected: map[string]any{}, wantPath: "at $: expected an object"},
		{name: "array vs object", actual: `{}`, expected: []any{}, wantPath: "at $: expected an array"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := jsonmatch.CompareJSON(tt.actual, tt.expected)
			if tt.wantPath == "" {
				assert.NoError(t, err)
				return
			}
			f := failure(t, err)
			assert.Equal(t, fail.Match, f.Kind)
			assert.Contains(t, f.Message, tt.wantPath)
		})
	}
}

func TestCompareGoValues(t *testing.T) {
	assert.NoError(t, jsonmatch.Compare(map[string]any{"a": int64(3), "b": "x"}, map[string]any{"a": 3.0}))
	assert.NoError(t, jsonmatch.Compare([]string{"a", "b"}, []any{"a", "<RE>b"}))
	assert.Error(t, jsonmatch.Compare(uint8(1), int(2)))
}

func TestCompareDiffDetail(t *testing.T) {
	f := failure(t, jsonmatch.CompareJSON(`[1,2,3]`, []any{1, 2}))
	assert.Contains(t, f.Detail, "diff (-expected +actual)")
	assert.Equal(t, "[1,2,3]", f.Actual)
	assert.Equal(t, "[1,2]", f.Expected)
}

func TestCompareInvalidActual(t *testing.T) {
	f := failure(t, jsonmatch.CompareJSON(`{"a":`, map[string]any{}))
	assert.Equal(t, "actual is not valid JSON", f.Message)

	f = failure(t, jsonmatch.CompareJSON(`{} {}`, map[string]any{}))
	assert.Equal(t, "actual is not valid JSON", f.Message)
}

func TestCompareJSONText(t *testing.T) {
	assert.NoError(t, jsonmatch.CompareJSONText(`{"id":"17","name":"node-3","tags":["a"]}`,
		`{"id":"<RE>\\d+"}`))
	assert.Error(t, jsonmatch.CompareJSONText(`{"id":17}`, `{"id":"<RE>\\d+"}`))
	assert.NoError(t, jsonmatch.CompareJSONText(`{"n":1.50}`, `{"n":1.5}`))

	err := jsonmatch.CompareJSONText(`{}`, `{`)
	require.Error(t, err)
	assert.False(t, fail.IsFailure(err))
}

func TestCompareJSONNumber(t *testing.T) {
	assert.NoError(t, jsonmatch.Compare(json.Number("10"), 10))
	assert.NoError(t, jsonmatch.Compare(json.Number("0.1"), json.Number("1e-1")))
	assert.NoError(t, jsonmatch.Compare(json.Number("0.1"), 0.1))
	assert.Error(t, jsonmatch.Compare(json.Number("0.1"), float32(0.2)))
}
