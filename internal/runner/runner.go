// Package runner wires internal/cliopts, internal/config, and
// internal/proxyrun into the executable's actual entry point, mirroring
// the way bridge.Run does the equivalent wiring for the teacher's own
// bridge subcommand (bridge/bridge.go). It is the only package that
// touches os.Args, os.Stdin/Stdout, and process exit codes.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/viant/afs"

	"github.com/viant/ultra-lean-mcp-proxy/internal/cliopts"
	"github.com/viant/ultra-lean-mcp-proxy/internal/config"
	"github.com/viant/ultra-lean-mcp-proxy/internal/proxyrun"
)

// Main parses args, resolves config, and runs the proxy until the
// upstream exits, returning the process exit code (SPEC_FULL.md §6):
// 2 for a config resolution/validation failure, 1 for a flag-parsing or
// upstream-spawn failure, otherwise whatever the session's relay loop
// returns.
func Main(args []string) int {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	f, flagsParser, upstreamCmd, err := cliopts.Parse(args)
	if err != nil {
		logger.Printf("argument error: %v", err)
		return 1
	}

	cli := cliopts.ToCLIOverrides(flagsParser, f)

	fs := afs.New()
	readFile := func(path string) ([]byte, error) {
		return fs.DownloadWithURL(context.Background(), path)
	}

	cfg, err := config.Load(upstreamCmd, f.Config, cli, os.LookupEnv, readFile)
	if err != nil {
		logger.Printf("config error: %v", err)
		return 2
	}

	if f.DumpEffectiveConfig {
		dumpEffectiveConfig(cfg, os.Stderr)
	}

	var traceLogger *log.Logger
	if cfg.TraceRPC {
		traceLogger = log.New(os.Stderr, "trace: ", log.LstdFlags|log.Lmicroseconds)
	}
	if cfg.Verbose {
		logger.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}

	session := proxyrun.New(cfg, logger, traceLogger)
	exitCode, err := session.Run(upstreamCmd, os.Stdin, os.Stdout)
	if err != nil {
		logger.Printf("%v", err)
		if exitCode == 0 {
			exitCode = 1
		}
	}
	return exitCode
}

func dumpEffectiveConfig(cfg config.Config, w *os.File) {
	encoded, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "effective config: <error: %v>\n", err)
		return
	}
	fmt.Fprintf(w, "effective config:\n%s\n", encoded)
}
