//go:build linux || darwin

// Command testbin is a fixture program for testing the outcheck library.
//
// Modes, selected by the first argument:
//
//	repl (default)  reads stdin line by line and responds to commands
//	server          serves queries over HTTP until terminated
//	tests           prints a unit test report and exits
//
// In repl mode:
//   - On startup, prints "ready"
//   - "quit": exits with status 0
//   - "fail": exits with status 1
//   - "exit N": exits with status N
//   - "lines N": prints N numbered lines
//   - "log LEVEL MESSAGE": prints a log line
//   - "err MESSAGE": prints MESSAGE to stderr
//   - "size": prints the terminal size
//   - "tty": prints whether stdin is a terminal
//   - "color": prints a line wrapped in ANSI color codes
//   - Anything else: prints "echo: <line>"
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// newLogger writes lines laid out as "{time} {level:-5} {message}".
func newLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	w := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		NoColor:    true,
		TimeFormat: "2006-01-02 15:04:05.000",
		PartsOrder: []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName},
		FormatLevel: func(i any) string {
			return fmt.Sprintf("%-5s", strings.ToUpper(fmt.Sprint(i)))
		},
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func main() {
	mode := "repl"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}
	log := newLogger()

	switch mode {
	case "repl":
		repl(log)
	case "server":
		os.Exit(server(log, os.Args[2:]))
	case "tests":
		os.Exit(tests(os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", mode)
		os.Exit(2)
	}
}

func repl(log zerolog.Logger) {
	fmt.Println("ready")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		input := scanner.Text()
		cmd, arg, _ := strings.Cut(input, " ")

		switch cmd {
		case "quit":
			os.Exit(0)

		case "fail":
			os.Exit(1)

		case "exit":
			code, err := strconv.Atoi(arg)
			if err != nil {
				fmt.Printf("error: invalid code %q\n", arg)
				continue
			}
			os.Exit(code)

		case "lines":
			count, err := strconv.Atoi(arg)
			if err != nil {
				fmt.Printf("error: invalid count %q\n", arg)
				continue
			}
			for i := 1; i <= count; i++ {
				fmt.Printf("line %d\n", i)
			}

		case "log":
			levelText, msg, _ := strings.Cut(arg, " ")
			level, err := zerolog.ParseLevel(strings.ToLower(levelText))
			if err != nil || level == zerolog.NoLevel {
				fmt.Printf("error: invalid level %q\n", levelText)
				continue
			}
			log.WithLevel(level).Msg(msg)

		case "err":
			fmt.Fprintln(os.Stderr, arg)

		case "size":
			ws, err := unix.IoctlGetWinsize(int(os.Stdin.Fd()), unix.TIOCGWINSZ)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Printf("size: %dx%d\n", ws.Col, ws.Row)

		case "tty":
			_, err := unix.IoctlGetTermios(int(os.Stdin.Fd()), ioctlGetTermios)
			fmt.Printf("tty: %t\n", err == nil)

		case "color":
			fmt.Printf("\x1b[1;32m%s\x1b[0m\n", arg)

		default:
			fmt.Printf("echo: %s\n", input)
		}
	}
}

// tests prints a report shaped like a unit test runner's. Arguments name
// passing tests; a name prefixed with "!" fails.
func tests(names []string) int {
	passed, failed := 0, 0
	for i, name := range names {
		d := fmt.Sprintf("%d.%03ds", 0, 10*(i+1))
		if strings.HasPrefix(name, "!") {
			fmt.Printf("FAILED %s (%s)\n", name[1:], d)
			failed++
			continue
		}
		fmt.Printf("OK %s (%s)\n", name, d)
		passed++
	}
	fmt.Println()
	fmt.Println(strings.Repeat("-", 72))
	fmt.Println("TEST RESULTS:")
	fmt.Println()
	fmt.Printf("SUMMARY: %d FAILED / %d PASSED / %d TOTAL (0.123s)\n", failed, passed, failed+passed)
	fmt.Println()
	if failed > 0 {
		fmt.Println("***** FAILED *****")
		return 1
	}
	fmt.Println("***** OK *****")
	return 0
}
