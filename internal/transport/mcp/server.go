// Package mcp exposes the triage and alerting capabilities as MCP tools so
// that agent clients can analyze reports and watch alerts.
package mcp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ishan121028/RadiologyAI/internal/domain/alert"
	"github.com/ishan121028/RadiologyAI/internal/domain/triage"
	"github.com/ishan121028/RadiologyAI/internal/usecase/alertbroker"
	indexuc "github.com/ishan121028/RadiologyAI/internal/usecase/index"
	"github.com/ishan121028/RadiologyAI/internal/version"
)

// AlertSource supplies retained alerts and counters.
type AlertSource interface {
	List(f alertbroker.Filter) []alert.Event
	Counts() map[triage.Severity]int
	Threshold() triage.Severity
}

// StatsSource supplies index statistics.
type StatsSource interface {
	Statistics() indexuc.Statistics
}

// Ports are the capabilities the tool surface needs.
type Ports struct {
	Alerts AlertSource
	Stats  StatsSource
}

// Validate checks that all required ports are wired.
func (p *Ports) Validate() error {
	if p.Alerts == nil {
		return fmt.Errorf("alerts port is required")
	}
	if p.Stats == nil {
		return fmt.Errorf("stats port is required")
	}
	return nil
}

// Server is the MCP tool server.
type Server struct {
	ports  *Ports
	server *mcp.Server
}

// NewServer creates the MCP server.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}

	impl := &mcp.Implementation{
		Name:    "radiologyai",
		Version: version.Version,
	}

	s := &Server{
		ports:  ports,
		server: mcp.NewServer(impl, nil),
	}

	s.registerTools()

	return s, nil
}

// Run starts the MCP server over stdio.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP starts the MCP server over streamable HTTP on the given address.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background()) //nolint:errcheck
	}()

	err := httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
