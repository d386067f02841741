//go:build linux || darwin

package outcheck

import (
	"testing"

	"github.com/cboone/outcheck/jsonmatch"
)

// MatchJSON decodes actualText and verifies it against expected, a Go value
// built from maps, slices, numbers, strings, booleans and nil. Expected
// objects need only a subset of the actual keys; expected strings use the
// expectation language.
func MatchJSON(t testing.TB, actualText string, expected any) {
	t.Helper()
	if err := jsonmatch.CompareJSON(actualText, expected); err != nil {
		fatal(t, "json", err)
	}
}

// MatchJSONText is like MatchJSON with the expectation written as JSON.
func MatchJSONText(t testing.TB, actualText, expectedText string) {
	t.Helper()
	if err := jsonmatch.CompareJSONText(actualText, expectedText); err != nil {
		fatal(t, "json", err)
	}
}
