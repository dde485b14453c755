package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/colthorp/convocache/internal/cache"
	"github.com/colthorp/convocache/internal/config"
	"github.com/colthorp/convocache/internal/core"
	"github.com/colthorp/convocache/internal/output"
	"github.com/colthorp/convocache/internal/refresh"
)

// MCP Protocol types
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type MCPToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type MCPInitializeResult struct {
	ProtocolVersion string        `json:"protocolVersion"`
	ServerInfo      MCPServerInfo `json:"serverInfo"`
	Capabilities    interface{}   `json:"capabilities"`
}

// GetDayParams are the parameters for the get_day tool
type GetDayParams struct {
	DateSpec string `json:"date_spec"`
}

// GetRangeParams are the parameters for the get_range tool
type GetRangeParams struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// mcpServer answers MCP requests on a line-delimited JSON-RPC stream.
// Requests are handled one at a time, so at most one refresh runs per server.
type mcpServer struct {
	in      io.Reader
	out     io.Writer
	cfg     *config.Config
	backend cache.Backend
	logger  zerolog.Logger
	now     func() time.Time

	manager func(withBuilder bool) (*refresh.Manager, error)
}

func newMCPServer(in io.Reader, out io.Writer, c *config.Config, log zerolog.Logger) *mcpServer {
	return &mcpServer{
		in:      in,
		out:     out,
		cfg:     c,
		backend: cache.NewFilesystemBackend(c.CacheDir),
		logger:  log,
		now:     time.Now,
		manager: func(withBuilder bool) (*refresh.Manager, error) { return newManager(c, withBuilder) },
	}
}

// Serve reads requests until in is exhausted or ctx is cancelled.
func (s *mcpServer) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	// Increase buffer size for large messages
	const maxCapacity = 10 * 1024 * 1024 // 10MB
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, maxCapacity)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			// For parse errors, we can't know the ID, so we log to stderr
			// but don't send a response (which would have id: null and confuse clients)
			s.logger.Warn().Err(err).Msg("Parse error")
			continue
		}

		s.handleRequest(ctx, &req)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

func (s *mcpServer) handleRequest(ctx context.Context, req *MCPRequest) {
	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "initialized", "notifications/initialized":
		// Notifications don't get responses - silently ignore
		return
	case "tools/list":
		s.handleToolsList(req)
	case "tools/call":
		s.handleToolsCall(ctx, req)
	default:
		// Only send error for requests (those with an ID)
		// Notifications (no ID) should be silently ignored per JSON-RPC spec
		if req.ID != nil {
			s.sendError(req.ID, -32601, "Method not found", req.Method)
		}
	}
}

func (s *mcpServer) handleInitialize(req *MCPRequest) {
	result := MCPInitializeResult{
		ProtocolVersion: "2024-11-05",
		ServerInfo: MCPServerInfo{
			Name:    "convocache",
			Version: core.Version,
		},
		Capabilities: map[string]interface{}{
			"tools": map[string]interface{}{},
		},
	}
	s.sendResponse(req.ID, result)
}

func (s *mcpServer) handleToolsList(req *MCPRequest) {
	noArgs := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}

	tools := []MCPToolInfo{
		{
			Name:        "refresh",
			Description: "Rebuild the cached convocation summaries for every day touched by new log content, then rewrite the aggregate.\n\nReturns:\n    Run report: new-content range, planned and rebuilt dates, whether the snapshot was committed",
			InputSchema: noArgs,
		},
		{
			Name:        "plan",
			Description: "Dry run of refresh: report which dates would be rebuilt without building anything.\n\nReturns:\n    Run report with the planned dates",
			InputSchema: noArgs,
		},
		{
			Name:        "get_day",
			Description: "Get the cached convocation summary for one date.\n\nArgs:\n    date_spec: YYYY-MM-DD or shorthand ('today', 'yesterday')\n\nReturns:\n    Dictionary with the date and its cached entry",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"date_spec": map[string]interface{}{
						"type":        "string",
						"description": "Date specification - YYYY-MM-DD format or shorthand ('today', 'yesterday')",
					},
				},
				"required": []string{"date_spec"},
			},
		},
		{
			Name:        "get_range",
			Description: "Get cached convocation summaries for an inclusive date range.\n\nArgs:\n    start: First date, YYYY-MM-DD\n    end: Last date, YYYY-MM-DD\n\nReturns:\n    Dictionary of date to entry for every cached date in the range",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"start": map[string]interface{}{
						"type":        "string",
						"description": "First date in YYYY-MM-DD format",
					},
					"end": map[string]interface{}{
						"type":        "string",
						"description": "Last date in YYYY-MM-DD format",
					},
				},
				"required": []string{"start", "end"},
			},
		},
	}

	s.sendResponse(req.ID, map[string]interface{}{"tools": tools})
}

func (s *mcpServer) handleToolsCall(ctx context.Context, req *MCPRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(req.ID, -32602, "Invalid params", err.Error())
		return
	}

	switch params.Name {
	case "refresh":
		s.handleRefresh(ctx, req.ID)
	case "plan":
		s.handlePlan(ctx, req.ID)
	case "get_day":
		s.handleGetDay(req.ID, params.Arguments)
	case "get_range":
		s.handleGetRange(req.ID, params.Arguments)
	default:
		s.sendError(req.ID, -32602, "Unknown tool", params.Name)
	}
}

func (s *mcpServer) handleRefresh(ctx context.Context, id interface{}) {
	if s.cfg.BuilderCommand == "" {
		s.sendToolError(id, fmt.Sprintf("No builder command configured (set %sBUILDER_CMD)", core.EnvPrefix))
		return
	}

	m, err := s.manager(true)
	if err != nil {
		s.sendToolError(id, err.Error())
		return
	}
	res, err := m.Run(ctx)
	writeMetrics(m)
	if err != nil {
		s.sendToolError(id, fmt.Sprintf("Refresh failed: %v", err))
		return
	}
	s.sendToolResult(id, output.NewReport(res))
}

func (s *mcpServer) handlePlan(ctx context.Context, id interface{}) {
	m, err := s.manager(false)
	if err != nil {
		s.sendToolError(id, err.Error())
		return
	}
	res, err := m.Plan(ctx)
	if err != nil {
		s.sendToolError(id, fmt.Sprintf("Plan failed: %v", err))
		return
	}
	s.sendToolResult(id, output.NewReport(res))
}

func (s *mcpServer) handleGetDay(id interface{}, argsJSON json.RawMessage) {
	var args GetDayParams
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		s.sendToolError(id, fmt.Sprintf("Invalid arguments: %v", err))
		return
	}

	day, err := parseDateSpec(args.DateSpec, s.now())
	if err != nil {
		s.sendToolResult(id, map[string]interface{}{
			"error":         fmt.Sprintf("Invalid date specification: %s", args.DateSpec),
			"valid_formats": []string{"YYYY-MM-DD", "today", "yesterday"},
			"date_spec":     args.DateSpec,
		})
		return
	}

	entry, err := s.backend.Read(day)
	if errors.Is(err, cache.ErrEntryNotFound) {
		s.sendToolResult(id, map[string]interface{}{
			"date":   core.FormatDate(day),
			"cached": false,
			"entry":  nil,
		})
		return
	}
	if err != nil {
		s.sendToolError(id, err.Error())
		return
	}

	s.sendToolResult(id, map[string]interface{}{
		"date":   core.FormatDate(day),
		"cached": true,
		"entry":  entry,
	})
}

func (s *mcpServer) handleGetRange(id interface{}, argsJSON json.RawMessage) {
	var args GetRangeParams
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		s.sendToolError(id, fmt.Sprintf("Invalid arguments: %v", err))
		return
	}

	start, err := core.ParseDate(args.Start)
	if err != nil {
		s.sendToolError(id, err.Error())
		return
	}
	end, err := core.ParseDate(args.End)
	if err != nil {
		s.sendToolError(id, err.Error())
		return
	}
	if end.Before(start) {
		s.sendToolResult(id, map[string]interface{}{
			"error": "end must not be before start",
			"start": args.Start,
			"end":   args.End,
		})
		return
	}

	r := core.DateRange{Start: start, End: end}
	days, err := s.backend.Dates()
	if err != nil {
		s.sendToolError(id, err.Error())
		return
	}

	entries := cache.Aggregate{}
	for _, day := range days {
		if !r.Contains(day) {
			continue
		}
		content, err := s.backend.Read(day)
		if errors.Is(err, cache.ErrEntryNotFound) {
			continue
		}
		if err != nil {
			s.sendToolError(id, err.Error())
			return
		}
		entries[core.FormatDate(day)] = content
	}

	s.sendToolResult(id, map[string]interface{}{
		"start":         core.FormatDate(start),
		"end":           core.FormatDate(end),
		"entries_count": len(entries),
		"entries":       entries,
	})
}

// parseDateSpec accepts YYYY-MM-DD, "today" or "yesterday" relative to now.
func parseDateSpec(dateSpec string, now time.Time) (time.Time, error) {
	switch dateSpec {
	case "today":
		return core.DateOnly(now), nil
	case "yesterday":
		return core.AddDays(now, -1), nil
	default:
		return core.ParseDate(dateSpec)
	}
}

func (s *mcpServer) write(resp MCPResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error().Err(err).Msg("Encoding response")
		return
	}
	fmt.Fprintln(s.out, string(data))
}

func (s *mcpServer) sendResponse(id interface{}, result interface{}) {
	s.write(MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

func (s *mcpServer) sendError(id interface{}, code int, message, data string) {
	s.write(MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
}

func (s *mcpServer) sendToolResult(id interface{}, result interface{}) {
	s.sendResponse(id, map[string]interface{}{
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": mustMarshal(result),
			},
		},
	})
}

func (s *mcpServer) sendToolError(id interface{}, message string) {
	s.sendResponse(id, map[string]interface{}{
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": message,
			},
		},
		"isError": true,
	})
}

func mustMarshal(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return string(data)
}
