package proxyrun

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/viant/ultra-lean-mcp-proxy/internal/rpc"
)

// terminationGrace is how long the upstream is given to exit on its own
// after its input is closed, before the proxy sends it SIGTERM, and again
// after SIGTERM before the proxy kills it (SPEC_FULL.md §4.1, §5).
const terminationGrace = 2 * time.Second

// Run spawns upstreamCmd, relays newline-delimited JSON-RPC between
// clientIn/clientOut and the child's stdio, and blocks until the child
// exits or a termination signal arrives. It returns the exit code the
// host process should use (SPEC_FULL.md §6).
func (s *Session) Run(upstreamCmd []string, clientIn io.Reader, clientOut io.Writer) (int, error) {
	if len(upstreamCmd) == 0 {
		return 1, fmt.Errorf("proxyrun: no upstream command given")
	}
	execPath, err := exec.LookPath(upstreamCmd[0])
	if err != nil {
		return 1, fmt.Errorf("proxyrun: resolving upstream command %q: %w", upstreamCmd[0], err)
	}

	cmd := exec.Command(execPath, upstreamCmd[1:]...)
	cmd.Stderr = os.Stderr

	upstreamIn, err := cmd.StdinPipe()
	if err != nil {
		return 1, fmt.Errorf("proxyrun: opening upstream stdin: %w", err)
	}
	upstreamOut, err := cmd.StdoutPipe()
	if err != nil {
		return 1, fmt.Errorf("proxyrun: opening upstream stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("proxyrun: starting upstream: %w", err)
	}

	clientReader := rpc.NewReader(clientIn)
	clientWriter := rpc.NewWriter(clientOut)
	upstreamReader := rpc.NewReader(upstreamOut)
	upstreamWriter := rpc.NewWriter(upstreamIn)

	done := make(chan struct{})
	var closeUpstreamOnce sync.Once
	closeUpstream := func() {
		closeUpstreamOnce.Do(func() {
			upstreamIn.Close()
			select {
			case <-done:
			case <-time.After(terminationGrace):
				_ = cmd.Process.Signal(syscall.SIGTERM)
				select {
				case <-done:
				case <-time.After(terminationGrace):
					_ = cmd.Process.Kill()
				}
			}
		})
	}

	go func() {
		defer closeUpstream()
		for {
			line, readErr := clientReader.ReadLine()
			if readErr != nil {
				return
			}
			s.addMetrics(func(m *Metrics) { m.BytesSentUpstream += len(line.Raw) })
			if writeErr := s.relayClientLine(line, upstreamWriter, clientWriter); writeErr != nil {
				return
			}
		}
	}()

	go func() {
		for {
			line, readErr := upstreamReader.ReadLine()
			if readErr != nil {
				return
			}
			s.addMetrics(func(m *Metrics) {
				m.ResponsesFromUpstream++
				m.BytesReceivedUpstream += len(line.Raw)
			})
			if writeErr := s.relayUpstreamLine(line, clientWriter); writeErr != nil {
				return
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			_ = cmd.Process.Signal(syscall.SIGTERM)
			closeUpstream()
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	signal.Stop(sigCh)

	if waitErr == nil {
		return 0, nil
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return 1, waitErr
}

// relayClientLine forwards one client-originated line, intercepting
// initialize/tools/list/tools/call requests per SPEC_FULL.md §4.10.
func (s *Session) relayClientLine(line rpc.Line, upstreamWriter *rpc.Writer, clientWriter *rpc.Writer) error {
	if !line.Parsed {
		return upstreamWriter.WriteRaw(line.Raw)
	}
	msg := line.Value
	method, hasMethod := rpc.Method(msg)
	if !hasMethod {
		return upstreamWriter.WriteRaw(line.Raw)
	}
	idKey := ""
	if rpc.HasID(msg) {
		idKey = rpc.IDKey(rpc.ID(msg))
	}
	trace(s.trace, "client->upstream", method, idKey)

	switch method {
	case "initialize":
		if idKey != "" {
			s.setPending(idKey, pendingRequest{method: method, negotiated: clientNegotiatedExtension(msg)})
		}
	case "tools/list":
		resp, shortCircuit, ifNoneMatch, ifNoneMatchValid := s.handleToolsListRequest(msg)
		if shortCircuit {
			resp = s.attachRuntimeMetrics(resp)
			trace(s.trace, "upstream<-proxy(short-circuit)", method, idKey)
			return clientWriter.WriteValue(resp)
		}
		if idKey != "" {
			s.setPending(idKey, pendingRequest{
				method:                method,
				toolsIfNoneMatch:      ifNoneMatch,
				toolsIfNoneMatchValid: ifNoneMatchValid,
			})
		}
	case "tools/call":
		decision := s.handleToolsCallRequest(msg)
		if decision.ShortCircuit {
			resp := s.attachRuntimeMetrics(decision.Response)
			trace(s.trace, "upstream<-proxy(short-circuit)", method, idKey)
			return clientWriter.WriteValue(resp)
		}
		if idKey != "" {
			s.setPending(idKey, decision.Pending)
		}
	default:
		if idKey != "" {
			s.setPending(idKey, pendingRequest{method: method})
		}
	}

	s.addMetrics(func(m *Metrics) { m.RequestsToUpstream++ })
	return upstreamWriter.WriteRaw(line.Raw)
}

// relayUpstreamLine forwards one upstream-originated line, applying
// method-specific post-processing to responses whose request we recorded.
func (s *Session) relayUpstreamLine(line rpc.Line, clientWriter *rpc.Writer) error {
	if !line.Parsed {
		return clientWriter.WriteRaw(line.Raw)
	}
	msg := line.Value
	if !rpc.HasID(msg) {
		return clientWriter.WriteRaw(line.Raw)
	}
	idKey := rpc.IDKey(rpc.ID(msg))
	pending, ok := s.takePending(idKey)
	if !ok {
		return clientWriter.WriteValue(msg)
	}
	trace(s.trace, "upstream->client", pending.method, idKey)

	outgoing := msg
	if !rpc.HasError(msg) {
		switch pending.method {
		case "initialize":
			outgoing = s.handleInitializeResponse(msg, pending.negotiated)
		case "tools/list":
			outgoing = s.handleToolsListResponse(msg, pending)
		case "tools/call":
			outgoing = s.handleToolsCallResponse(msg, pending)
		}
	}
	outgoing = s.attachRuntimeMetrics(outgoing)
	return clientWriter.WriteValue(outgoing)
}
