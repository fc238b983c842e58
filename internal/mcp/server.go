package mcp

import (
	"context"
	"io"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/triagewatch/internal/domain/finding"
	"github.com/rpggio/triagewatch/internal/domain/triage"
	"github.com/rpggio/triagewatch/internal/feed"
)

// FeedRegistry shares finding feeds between tool calls.
type FeedRegistry interface {
	Open(ctx context.Context, findingID string) (*feed.Feed, error)
	Get(findingID string) (*feed.Feed, bool)
	Release(findingID string) bool
	FindingIDs() []string
}

// FindingService defines finding operations needed by MCP.
type FindingService interface {
	Get(ctx context.Context, id string) (*finding.Finding, error)
}

// TriageService defines triage operations needed by MCP.
type TriageService interface {
	Get(ctx context.Context, findingID string) (*triage.Result, error)
}

// Services contains all domain services needed by MCP.
type Services struct {
	Feeds    FeedRegistry
	Findings FindingService
	Triage   TriageService
}

// Config contains server configuration.
type Config struct {
	Services      Services
	Resolver      TokenResolver
	AuthEnabled   bool
	TransportMode string // "stdio" or "http"
	Version       string
	Logger        *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Version == "" {
		cfg.Version = "0.1.0"
	}

	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "triagewatch",
		Version: cfg.Version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	// Stdio is local only and never authenticates.
	if cfg.TransportMode != "stdio" && cfg.AuthEnabled {
		server.AddReceivingMiddleware(authMiddleware(cfg.Resolver))
	} else {
		server.AddReceivingMiddleware(noAuthMiddleware(localPrincipal))
	}
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg.Services, cfg.Logger)

	return server
}
