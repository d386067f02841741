//go:build linux || darwin

package main

import (
	"github.com/urfave/cli/v2"
)

const envVarPrefix = "OUTCHECK"

func prefixEnvVar(name string) []string {
	return []string{envVarPrefix + "_" + name}
}

var (
	LogLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Value:   "warn",
		EnvVars: prefixEnvVar("LOG_LEVEL"),
		Usage:   "Log level (trace, debug, info, warn, error)",
	}
	ParallelFlag = &cli.IntFlag{
		Name:    "parallel",
		Value:   1,
		EnvVars: prefixEnvVar("PARALLEL"),
		Usage:   "Number of case files run at the same time",
	}
	TimeoutFlag = &cli.DurationFlag{
		Name:    "timeout",
		Value:   0,
		EnvVars: prefixEnvVar("TIMEOUT"),
		Usage:   "Per-line timeout overriding every case (e.g. '5s'). 0 keeps the case values.",
	}
	NoColorFlag = &cli.BoolFlag{
		Name:    "no-color",
		EnvVars: prefixEnvVar("NO_COLOR"),
		Usage:   "Render the report without colors",
	}
)

var Flags = []cli.Flag{
	LogLevelFlag,
	ParallelFlag,
	TimeoutFlag,
	NoColorFlag,
}
