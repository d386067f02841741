// Package outcheck provides black-box testing for programs through their
// standard streams.
//
// outcheck runs a real binary as a child process, writes to its stdin, and
// verifies the lines it prints against ordered expectations through the
// standard [testing.TB] interface. It also runs commands to completion,
// checks unit test reports, and talks to programs that serve HTTP.
//
// # Quick Start
//
//	func TestMyApp(t *testing.T) {
//		sess := outcheck.Start(t, "./my-app")
//		sess.Expect("ready")
//		sess.Input("hello\n")
//		sess.Expect("echo: hello")
//	}
//
// Cleanup is automatic through t.Cleanup; there is no Close method.
//
// # Expectations
//
// Each expected line is a string in the expectation language, a
// [*regexp.Regexp], or a [match.Matcher]:
//
//   - "text" matches exactly that line
//   - "<RE>pattern" matches a whole line against a regular expression
//   - "<LOG:INFO>pattern" matches a log line of that level whose message
//     matches pattern, laid out by the session's [match.LogFormat]
//   - "<TEST>pattern" matches a test line ending in a duration such as
//     " (0.012s)"
//
// [Session.Expect] reads the next significant lines one by one, waiting up to
// the timeout for each, and fails if more output follows unless
// [IgnoreRest] is given. Lines registered with [Session.Ignore] are skipped.
//
// Wait behavior:
//
//   - Defaults: 10s per line, 100ms poll interval
//   - Per-session overrides: [WithTimeout], [WithPollInterval]
//   - Per-call overrides: [WithinTimeout], [IgnoreRest]
//   - Poll intervals under 10ms are clamped to 10ms
//   - Negative timeout or poll values fail the test immediately
//   - If the program's output ends, waits fail immediately
//
// # Servers
//
// [Session.WaitReady] waits for the line announcing the HTTP port, by default
// "listening on port N". [Session.Query] and [Session.CheckQuery] post JSON
// to the program; [MatchJSON] verifies JSON responses structurally.
//
// # Commands
//
// [RunCommand], [CheckCommand] and [CheckTests] run a binary to completion
// with optional input and check its exit code and output.
//
// # Snapshots
//
// [Output.MatchSnapshot] compares captured output to golden files under
// testdata. Set OUTCHECK_UPDATE=1 to create or update golden files.
//
// # Diagnostics
//
// On failure, outcheck reports the operation, the kind of failure, the
// actual line and the expectation, and the most recent output lines.
// Set OUTCHECK_LOG to a level such as "debug" to log session events to the
// test log, or pass [WithLogger].
//
// # Requirements
//
//   - Go 1.24+
//   - Linux or macOS
package outcheck
