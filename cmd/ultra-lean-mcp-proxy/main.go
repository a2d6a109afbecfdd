package main

import (
	"os"

	"github.com/viant/ultra-lean-mcp-proxy/internal/runner"
)

func main() {
	os.Exit(runner.Main(os.Args[1:]))
}
