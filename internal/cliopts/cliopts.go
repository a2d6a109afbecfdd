// Package cliopts defines the proxy subcommand's command-line surface
// with github.com/jessevdk/go-flags, mirroring the struct-tag pattern the
// teacher uses for its own Options type (bridge/options.go). Unlike the
// teacher's single-purpose bridge flags, most of this surface is a set
// of optional overrides that must be distinguishable from "not passed"
// so that config.ApplyCLI only applies flags the operator actually used
// (SPEC_FULL.md §6).
package cliopts

import (
	"fmt"

	"github.com/jessevdk/go-flags"

	"github.com/viant/ultra-lean-mcp-proxy/internal/config"
)

// Flags is the full proxy subcommand surface of SPEC_FULL.md §6.
type Flags struct {
	Stats               bool   `long:"stats" description:"attach a runtime metrics snapshot to every response"`
	TraceRPC            bool   `long:"trace-rpc" description:"log every inbound/outbound JSON-RPC message to stderr"`
	Verbose             bool   `short:"v" long:"verbose" description:"enable debug-level logging"`
	Config              string `long:"config" description:"path to a JSON/JSONC/YAML config file"`
	SessionID           string `long:"session-id" description:"override the resolved session id"`
	StrictConfig        bool   `long:"strict-config" description:"record strict mode in the resolved config (unrecognized config keys are not rejected)"`
	DumpEffectiveConfig bool   `long:"dump-effective-config" description:"print the resolved config to stderr before spawning the upstream"`

	EnableResultCompression  bool `long:"enable-result-compression"`
	DisableResultCompression bool `long:"disable-result-compression"`
	EnableDeltaResponses     bool `long:"enable-delta-responses"`
	DisableDeltaResponses    bool `long:"disable-delta-responses"`
	EnableLazyLoading        bool `long:"enable-lazy-loading"`
	DisableLazyLoading       bool `long:"disable-lazy-loading"`
	EnableToolsHashSync      bool `long:"enable-tools-hash-sync"`
	DisableToolsHashSync     bool `long:"disable-tools-hash-sync"`
	EnableCaching            bool `long:"enable-caching"`
	DisableCaching           bool `long:"disable-caching"`

	CacheTTL                 int     `long:"cache-ttl" description:"default response cache TTL, in seconds"`
	DeltaMinSavings          float64 `long:"delta-min-savings" description:"minimum patch/full byte savings ratio to accept a delta"`
	LazyMode                 string  `long:"lazy-mode" choice:"off" choice:"minimal" choice:"catalog" choice:"search_only"`
	ToolsHashRefreshInterval int     `long:"tools-hash-refresh-interval" description:"force a real tools/list fetch every N conditional hits"`
	SearchTopK               int     `long:"search-top-k" description:"max results returned by the search meta-tool"`
	ResultCompressionMode    string  `long:"result-compression-mode" choice:"off" choice:"balanced" choice:"aggressive"`
}

// Parse parses args (normally os.Args[1:]) against Flags. Everything
// after a literal "--" is returned separately as the upstream command.
// The returned parser carries per-option IsSet state and must be passed
// to ToCLIOverrides.
func Parse(args []string) (*Flags, *flags.Parser, []string, error) {
	f := &Flags{}
	parser := flags.NewParser(f, flags.Default)
	parser.Name = "ultra-lean-mcp-proxy"
	upstream, err := findUpstream(args)
	if err != nil {
		return nil, nil, nil, err
	}
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, nil, nil, err
	}
	return f, parser, upstream, nil
}

// findUpstream splits off everything after the first bare "--" argument;
// go-flags itself stops option parsing there but still returns it among
// the leftover positional args, so this proxy locates it explicitly
// rather than relying on that leftover slice's exact shape.
func findUpstream(args []string) ([]string, error) {
	for i, a := range args {
		if a == "--" {
			return args[i+1:], nil
		}
	}
	return nil, fmt.Errorf("cliopts: missing upstream command (expected a \"--\" separator)")
}

// setOptionalBool resolves an --enable-X/--disable-X pair into a
// pointer override: nil when neither flag was passed, else the winning
// value. Passing both resolves to --disable-X, whatever order the two
// flags were given in.
func setOptionalBool(enabled, disabled bool) *bool {
	switch {
	case disabled:
		v := false
		return &v
	case enabled:
		v := true
		return &v
	default:
		return nil
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalInt(set bool, v int) *int {
	if !set {
		return nil
	}
	return &v
}

func optionalFloat(set bool, v float64) *float64 {
	if !set {
		return nil
	}
	return &v
}

// ToCLIOverrides translates parsed flags into a config.CLIOverrides
// value. parser is used to detect whether a zero-valued numeric/string
// flag was actually passed on the command line (go-flags' Option.IsSet),
// since Go's zero values for int/float/string are themselves valid
// operator inputs (e.g. --search-top-k 0) that must not be confused with
// "flag absent".
func ToCLIOverrides(parser *flags.Parser, f *Flags) config.CLIOverrides {
	isSet := func(long string) bool {
		opt := parser.FindOptionByLongName(long)
		return opt != nil && opt.IsSet()
	}

	overrides := config.CLIOverrides{
		ResultCompression: setOptionalBool(f.EnableResultCompression, f.DisableResultCompression),
		DeltaResponses:    setOptionalBool(f.EnableDeltaResponses, f.DisableDeltaResponses),
		LazyLoading:       setOptionalBool(f.EnableLazyLoading, f.DisableLazyLoading),
		ToolsHashSync:     setOptionalBool(f.EnableToolsHashSync, f.DisableToolsHashSync),
		Caching:           setOptionalBool(f.EnableCaching, f.DisableCaching),
		SessionID:         optionalString(f.SessionID),
		LazyMode:          optionalString(f.LazyMode),
		ResultCompressionMode: optionalString(f.ResultCompressionMode),
		ConfigPath:        optionalString(f.Config),
		CacheTTL:          optionalInt(isSet("cache-ttl"), f.CacheTTL),
		SearchTopK:        optionalInt(isSet("search-top-k"), f.SearchTopK),
		ToolsHashRefreshInterval: optionalInt(isSet("tools-hash-refresh-interval"), f.ToolsHashRefreshInterval),
		DeltaMinSavings:   optionalFloat(isSet("delta-min-savings"), f.DeltaMinSavings),
	}
	if isSet("stats") {
		v := f.Stats
		overrides.Stats = &v
	}
	if isSet("verbose") {
		v := f.Verbose
		overrides.Verbose = &v
	}
	if isSet("strict-config") {
		v := f.StrictConfig
		overrides.StrictConfig = &v
	}
	if isSet("trace-rpc") {
		v := f.TraceRPC
		overrides.TraceRPC = &v
	}
	return overrides
}
