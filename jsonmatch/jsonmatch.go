// Package jsonmatch compares decoded JSON against an expected structure.
//
// Expected objects match any actual object holding at least their keys.
// Expected arrays match actual arrays of the same length, position by
// position. Expected strings, *regexp.Regexp values and match.Matcher values
// match actual strings through the outcheck expectation language, so
// "<RE>\\d+" or "<LOG:INFO>started" work at any depth. Numbers compare by
// numeric value regardless of their Go type; every other value must be equal
// in both type and value.
package jsonmatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"regexp"
	"sort"
	"strconv"

	"github.com/google/go-cmp/cmp"

	"github.com/cboone/outcheck/internal/fail"
	"github.com/cboone/outcheck/match"
)

const op = "json"

// Compare matches actual against expected. The returned error is a
// *fail.Failure naming the JSON path of the first mismatch.
func Compare(actual, expected any) error {
	return compare("$", actual, expected)
}

// CompareJSON decodes actualText and matches it against expected.
func CompareJSON(actualText string, expected any) error {
	actual, err := decode(actualText)
	if err != nil {
		return &fail.Failure{Kind: fail.Match, Op: op, Message: "actual is not valid JSON", Actual: actualText, Err: err}
	}
	return Compare(actual, expected)
}

// CompareJSONText decodes both documents and matches them. String leaves of
// expectedText are expectations.
func CompareJSONText(actualText, expectedText string) error {
	expected, err := decode(expectedText)
	if err != nil {
		return fmt.Errorf("jsonmatch: invalid expected JSON: %w", err)
	}
	return CompareJSON(actualText, expected)
}

func decode(text string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

func compare(path string, actual, expected any) error {
	switch exp := expected.(type) {
	case nil:
		if actual != nil {
			return mismatch(path, "expected null", actual, expected)
		}
		return nil
	case string, *regexp.Regexp, match.Matcher:
		s, ok := actual.(string)
		if !ok {
			return mismatch(path, "expected a string", actual, expected)
		}
		m, err := match.ParseValue(exp, match.Default)
		if err != nil {
			return &fail.Failure{Kind: fail.Match, Op: op, Message: "at " + path + ": invalid expectation", Err: err}
		}
		if !m.Match(s) {
			f := fail.Mismatch(op, s, m.String())
			f.Message = "at " + path
			return f
		}
		return nil
	}

	if en, ok := number(expected); ok {
		an, ok := number(actual)
		if !ok {
			return mismatch(path, "expected a number", actual, expected)
		}
		if an.Cmp(en) != 0 {
			return mismatch(path, "numbers differ", actual, expected)
		}
		return nil
	}

	if eo, ok := object(expected); ok {
		ao, ok := object(actual)
		if !ok {
			return mismatch(path, "expected an object", actual, expected)
		}
		keys := make([]string, 0, len(eo))
		for k := range eo {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			av, present := ao[k]
			if !present {
				return mismatch(path, fmt.Sprintf("missing key %q", k), actual, expected)
			}
			if err := compare(childKey(path, k), av, eo[k]); err != nil {
				return err
			}
		}
		return nil
	}

	if ea, ok := array(expected); ok {
		aa, ok := array(actual)
		if !ok {
			return mismatch(path, "expected an array", actual, expected)
		}
		if len(aa) != len(ea) {
			return mismatch(path, fmt.Sprintf("array length %d, expected %d", len(aa), len(ea)), actual, expected)
		}
		for i := range ea {
			if err := compare(fmt.Sprintf("%s[%d]", path, i), aa[i], ea[i]); err != nil {
				return err
			}
		}
		return nil
	}

	if reflect.TypeOf(actual) != reflect.TypeOf(expected) || !reflect.DeepEqual(actual, expected) {
		return mismatch(path, "values differ", actual, expected)
	}
	return nil
}

func mismatch(path, reason string, actual, expected any) *fail.Failure {
	f := fail.Mismatch(op, render(actual), render(display(expected)))
	f.Message = "at " + path + ": " + reason
	_, eo := object(expected)
	_, ea := array(expected)
	if eo || ea {
		f.Detail = "    diff (-expected +actual):\n" +
			cmp.Diff(display(expected), display(actual), cmp.Exporter(func(reflect.Type) bool { return true }))
	}
	return f
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func childKey(path, key string) string {
	if identifier.MatchString(key) {
		return path + "." + key
	}
	return path + "[" + strconv.Quote(key) + "]"
}

// number converts JSON numbers and Go numeric kinds to an exact rational.
func number(v any) (*big.Rat, bool) {
	switch n := v.(type) {
	case json.Number:
		r, ok := new(big.Rat).SetString(string(n))
		return r, ok
	case nil, bool, string:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return new(big.Rat).SetInt64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return new(big.Rat).SetInt(new(big.Int).SetUint64(rv.Uint())), true
	case reflect.Float32, reflect.Float64:
		// The shortest decimal form makes 0.1 equal to the JSON number 0.1.
		bits := 64
		if rv.Kind() == reflect.Float32 {
			bits = 32
		}
		r, ok := new(big.Rat).SetString(strconv.FormatFloat(rv.Float(), 'g', -1, bits))
		return r, ok
	}
	return nil, false
}

// object returns v as a string-keyed map, converting typed Go maps.
func object(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// array returns v as a slice, converting typed Go slices and arrays. Byte
// slices are not arrays.
func array(v any) ([]any, bool) {
	if a, ok := v.([]any); ok {
		return a, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
	case reflect.Array:
	default:
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// display replaces expectations with their readable form so that values
// can be rendered and diffed.
func display(v any) any {
	switch x := v.(type) {
	case *regexp.Regexp:
		return match.RegexPrefix + x.String()
	case match.Matcher:
		return x.String()
	}
	if o, ok := object(v); ok {
		out := make(map[string]any, len(o))
		for k, e := range o {
			out[k] = display(e)
		}
		return out
	}
	if a, ok := array(v); ok {
		out := make([]any, len(a))
		for i, e := range a {
			out[i] = display(e)
		}
		return out
	}
	return v
}

func render(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
