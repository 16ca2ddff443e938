// Package observability owns the process-wide loggers and the telemetry
// system. CLI commands log through the SIMPLE profile, the server through
// the STRUCTURED profile with correlation middleware.
package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger is used by CLI commands.
	CLILogger *logging.Logger

	// ServerLogger is used by the HTTP server and pipeline.
	ServerLogger *logging.Logger
)

// InitCLILogger initializes the CLI logger.
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		fatalStderr(foundry.ExitConfigInvalid, "failed to initialize CLI logger", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
}

// InitServerLogger initializes the structured server logger.
func InitServerLogger(serviceName string, logLevel string) {
	correlation := logging.MiddlewareConfig{
		Name:    "correlation",
		Enabled: true,
		Order:   100,
		Config:  make(map[string]any),
	}
	jsonStderr := logging.SinkConfig{
		Type:    "console",
		Format:  "json",
		Console: &logging.ConsoleSinkConfig{Stream: "stderr", Colorize: false},
	}

	logger, err := logging.New(&logging.LoggerConfig{
		Profile:          logging.ProfileStructured,
		DefaultLevel:     parseLogLevel(logLevel),
		Service:          serviceName,
		Environment:      "production",
		Middleware:       []logging.MiddlewareConfig{correlation},
		Sinks:            []logging.SinkConfig{jsonStderr},
		EnableCaller:     true,
		EnableStacktrace: true,
	})
	if err != nil {
		fatalStderr(foundry.ExitConfigInvalid, "failed to initialize server logger", err)
	}
	ServerLogger = logger
}

// parseLogLevel normalizes the configured level, defaulting to INFO
// for anything unrecognized.
func parseLogLevel(levelStr string) string {
	switch strings.ToLower(levelStr) {
	case "trace", "debug", "warn", "error":
		return strings.ToUpper(levelStr)
	case "warning":
		return "WARN"
	default:
		return "INFO"
	}
}

// fatalStderr reports a logger bootstrap failure before any logger
// exists, then exits with the semantic code.
func fatalStderr(exitCode foundry.ExitCode, msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}
	if info, ok := foundry.GetExitCodeInfo(exitCode); ok {
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	}
	os.Exit(int(exitCode))
}
