package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"pecan-telemetry/src/contracts"
	"pecan-telemetry/src/logger"
	"pecan-telemetry/src/store"
	"pecan-telemetry/src/telemetry"
)

// Server is the MCP server for live telemetry.
type Server struct {
	mcpServer *server.MCPServer
	telemetry *telemetry.Store
	archive   store.SampleStore
	logger    logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithArchive enables the get_archived_history tool.
func WithArchive(archive store.SampleStore) Option {
	return func(s *Server) {
		s.archive = archive
	}
}

// WithLogger sets the logger used for tool failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a new MCP server over ts.
func NewServer(ts *telemetry.Store, opts ...Option) *Server {
	s := server.NewMCPServer(
		"pecan",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	srv := &Server{
		mcpServer: s,
		telemetry: ts,
		logger:    logger.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	srv.registerTools()

	return srv
}

// registerTools registers all available tools.
func (s *Server) registerTools() {
	listTool := mcp.NewTool("list_messages",
		mcp.WithDescription("List every CAN message id seen so far with its name, retained sample count and last update time (ms since epoch)."),
	)

	latestTool := mcp.NewTool("get_latest",
		mcp.WithDescription("Get the most recent decoded sample for a message, including every signal reading and the raw bytes."),
		mcp.WithString("message_id",
			mcp.Required(),
			mcp.Description("Message id as listed by list_messages (decimal CAN id)"),
		),
	)

	signalTool := mcp.NewTool("get_signal",
		mcp.WithDescription("Get the latest reading of one signal within a message."),
		mcp.WithString("message_id",
			mcp.Required(),
			mcp.Description("Message id as listed by list_messages"),
		),
		mcp.WithString("signal",
			mcp.Required(),
			mcp.Description("Signal name, e.g. Pack_Voltage"),
		),
	)

	historyTool := mcp.NewTool("get_history",
		mcp.WithDescription("Get retained history for a message, oldest first, with per-signal min/max/mean. Long histories are downsampled; the summary always covers every retained sample."),
		mcp.WithString("message_id",
			mcp.Required(),
			mcp.Description("Message id as listed by list_messages"),
		),
		mcp.WithNumber("window_seconds",
			mcp.Description("Only include samples from the last N seconds (default: whole retention window)"),
		),
		mcp.WithNumber("max_points",
			mcp.Description(fmt.Sprintf("Maximum samples to return (default: %d, 0 for all)", DefaultMaxPoints)),
		),
	)

	statsTool := mcp.NewTool("get_stats",
		mcp.WithDescription("Get store statistics: message and sample counts, oldest/newest sample time, memory estimate and retention window."),
	)

	retentionTool := mcp.NewTool("set_retention_window",
		mcp.WithDescription("Change how many seconds of history are kept per message. Shrinking the window discards older samples immediately."),
		mcp.WithNumber("seconds",
			mcp.Required(),
			mcp.Description("New retention window in seconds (> 0, fractions allowed)"),
		),
	)

	clearTool := mcp.NewTool("clear_message",
		mcp.WithDescription("Discard all history for one message id."),
		mcp.WithString("message_id",
			mcp.Required(),
			mcp.Description("Message id to clear"),
		),
	)

	s.mcpServer.AddTool(listTool, s.handleListMessages)
	s.mcpServer.AddTool(latestTool, s.handleGetLatest)
	s.mcpServer.AddTool(signalTool, s.handleGetSignal)
	s.mcpServer.AddTool(historyTool, s.handleGetHistory)
	s.mcpServer.AddTool(statsTool, s.handleGetStats)
	s.mcpServer.AddTool(retentionTool, s.handleSetRetentionWindow)
	s.mcpServer.AddTool(clearTool, s.handleClearMessage)

	if s.archive != nil {
		archiveTool := mcp.NewTool("get_archived_history",
			mcp.WithDescription("Query the Postgres sample archive, which keeps history beyond the live retention window."),
			mcp.WithString("message_id",
				mcp.Required(),
				mcp.Description("Message id"),
			),
			mcp.WithNumber("since_ms",
				mcp.Description("Only samples at or after this timestamp (ms since epoch)"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum samples to return (default: 500)"),
			),
		)
		s.mcpServer.AddTool(archiveTool, s.handleGetArchivedHistory)
	}
}

// Run starts the MCP server on stdio.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) handleListMessages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(MessageListResponse{
		RetentionSeconds: s.telemetry.RetentionWindow().Seconds(),
		Messages:         s.telemetry.Messages(),
	})
}

func (s *Server) handleGetLatest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("message_id", "")
	if id == "" {
		return mcp.NewToolResultError("message_id parameter is required"), nil
	}

	sample, ok := s.telemetry.Latest(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no samples for message_id=%s", id)), nil
	}
	return jsonResult(contracts.FromSample(sample))
}

func (s *Server) handleGetSignal(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("message_id", "")
	name := request.GetString("signal", "")
	if id == "" || name == "" {
		return mcp.NewToolResultError("message_id and signal parameters are required"), nil
	}

	sample, ok := s.telemetry.Latest(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no samples for message_id=%s", id)), nil
	}
	sig, ok := sample.Signals[name]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("signal %q not found in message_id=%s", name, id)), nil
	}
	if math.IsNaN(sig.Reading) || math.IsInf(sig.Reading, 0) {
		return mcp.NewToolResultError(fmt.Sprintf("signal %q has no finite reading (%v)", name, sig.Reading)), nil
	}

	return jsonResult(SignalResponse{
		MessageID: id,
		Signal:    name,
		Reading:   sig.Reading,
		Unit:      sig.Unit,
		RawValue:  sig.RawValue,
		Timestamp: sample.Timestamp,
	})
}

func (s *Server) handleGetHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("message_id", "")
	if id == "" {
		return mcp.NewToolResultError("message_id parameter is required"), nil
	}

	windowSeconds := request.GetFloat("window_seconds", 0)
	if math.IsNaN(windowSeconds) || windowSeconds < 0 {
		return mcp.NewToolResultError("window_seconds must be a non-negative number"), nil
	}
	maxPoints := request.GetInt("max_points", DefaultMaxPoints)

	var samples []telemetry.Sample
	if windowSeconds > 0 {
		window, err := telemetry.ParseRetentionSeconds(windowSeconds)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid window_seconds: %v", err)), nil
		}
		samples = s.telemetry.HistoryWindow(id, window)
	} else {
		samples = s.telemetry.History(id)
	}

	resp := HistoryResponse{
		MessageID:     id,
		WindowSeconds: windowSeconds,
		TotalSamples:  len(samples),
		Summary:       summarize(samples),
		Samples:       toWire(downsample(samples, maxPoints)),
	}
	resp.Returned = len(resp.Samples)
	if len(samples) > 0 {
		resp.MessageName = samples[len(samples)-1].MessageName
	}
	return jsonResult(resp)
}

func (s *Server) handleGetStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(StatsResponse{
		Stats:            s.telemetry.Stats(),
		RetentionSeconds: s.telemetry.RetentionWindow().Seconds(),
		MessageCount:     len(s.telemetry.MessageIDs()),
	})
}

func (s *Server) handleSetRetentionWindow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	seconds := request.GetFloat("seconds", 0)
	window, err := telemetry.ParseRetentionSeconds(seconds)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid seconds: %v", err)), nil
	}
	if err := s.telemetry.SetRetentionWindow(window); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to set retention window: %v", err)), nil
	}

	s.logger.Info("[MCP] Retention window set to %v", window)
	return jsonResult(map[string]float64{"retention_seconds": window.Seconds()})
}

func (s *Server) handleClearMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("message_id", "")
	if id == "" {
		return mcp.NewToolResultError("message_id parameter is required"), nil
	}

	s.telemetry.ClearMessage(id)
	return jsonResult(map[string]string{"cleared": id})
}

func (s *Server) handleGetArchivedHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("message_id", "")
	if id == "" {
		return mcp.NewToolResultError("message_id parameter is required"), nil
	}
	since := int64(request.GetFloat("since_ms", 0))
	limit := request.GetInt("limit", 500)

	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	samples, err := s.archive.GetSamples(queryCtx, id, since, limit)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("no archived samples for message_id=%s", id)), nil
	}
	if err != nil {
		s.logger.Error("[MCP] Archive query failed for %s: %v", id, err)
		return mcp.NewToolResultError(fmt.Sprintf("archive query failed: %v", err)), nil
	}
	return jsonResult(toWire(samples))
}

// toWire converts samples to their JSON form. The result is never nil.
func toWire(samples []telemetry.Sample) []contracts.DecodedMessage {
	out := make([]contracts.DecodedMessage, len(samples))
	for i, sample := range samples {
		out[i] = contracts.FromSample(sample)
	}
	return out
}

// jsonResult marshals v into a text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
