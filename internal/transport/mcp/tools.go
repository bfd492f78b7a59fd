package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ishan121028/RadiologyAI/internal/domain/alert"
	"github.com/ishan121028/RadiologyAI/internal/domain/triage"
	"github.com/ishan121028/RadiologyAI/internal/usecase/alertbroker"
)

// AnalyzeInput is the input schema for the analyze_radiology_report tool.
type AnalyzeInput struct {
	ReportText string `json:"report_text" jsonschema:"the radiology report text to analyze"`
	PatientID  string `json:"patient_id,omitempty" jsonschema:"optional patient identifier for the report"`
}

// AnalyzeOutput is the output schema for the analyze_radiology_report tool.
type AnalyzeOutput struct {
	PatientID       string   `json:"patient_id,omitempty"`
	Severity        string   `json:"severity"`
	Conditions      []string `json:"conditions"`
	Actions         []string `json:"recommended_actions"`
	Recommendations []string `json:"treatment_recommendations,omitempty"`
	UrgencyMinutes  int      `json:"urgency_minutes,omitempty"`
}

// AlertsInput is the input schema for the get_active_alerts tool.
type AlertsInput struct {
	SeverityFilter string `json:"severity_filter,omitempty" jsonschema:"only return alerts of this severity (RED, ORANGE, YELLOW, GREEN)"`
	TimeRangeHours int    `json:"time_range_hours,omitempty" jsonschema:"only return alerts emitted within the last N hours"`
}

// AlertsOutput is the output schema for the get_active_alerts tool.
type AlertsOutput struct {
	Alerts []alert.Event `json:"alerts"`
	Count  int           `json:"count"`
}

// StatisticsInput is the (empty) input schema for the get_alert_statistics tool.
type StatisticsInput struct{}

// StatisticsOutput is the output schema for the get_alert_statistics tool.
type StatisticsOutput struct {
	TotalDocuments       int            `json:"total_documents"`
	BySeverity           map[string]int `json:"by_severity"`
	Degraded             int            `json:"degraded"`
	AvgProcessingSeconds float64        `json:"avg_processing_seconds"`
	AlertCounts          map[string]int `json:"alert_counts"`
	AlertThreshold       string         `json:"alert_threshold"`
}

// RecommendInput is the input schema for the recommend tool.
type RecommendInput struct {
	Conditions []string `json:"conditions" jsonschema:"the findings or conditions to recommend treatment for"`
}

// RecommendOutput is the output schema for the recommend tool.
type RecommendOutput struct {
	Recommendations []string `json:"recommendations"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "analyze_radiology_report",
		Description: "Classify a radiology report into a severity tier with matched conditions and recommended actions",
	}, s.handleAnalyze)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_active_alerts",
		Description: "List retained alerts, optionally filtered by severity and time window",
	}, s.handleAlerts)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_alert_statistics",
		Description: "Return index and alert counters",
	}, s.handleStatistics)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "recommend",
		Description: "Return treatment recommendations for a list of conditions",
	}, s.handleRecommend)
}

func (s *Server) handleAnalyze(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input AnalyzeInput,
) (*mcp.CallToolResult, AnalyzeOutput, error) {
	if input.ReportText == "" {
		return nil, AnalyzeOutput{}, fmt.Errorf("report_text is required")
	}

	res := triage.Classify("", "", input.ReportText)

	out := AnalyzeOutput{
		PatientID:       input.PatientID,
		Severity:        string(res.Severity),
		Conditions:      res.Conditions,
		Actions:         res.Actions,
		Recommendations: triage.Recommend(res.Conditions),
	}
	if res.Severity != triage.SeverityGreen {
		out.UrgencyMinutes = res.Severity.UrgencyMinutes()
	}
	return nil, out, nil
}

func (s *Server) handleAlerts(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input AlertsInput,
) (*mcp.CallToolResult, AlertsOutput, error) {
	var f alertbroker.Filter

	if input.SeverityFilter != "" {
		sev, err := triage.ParseSeverity(input.SeverityFilter)
		if err != nil {
			return nil, AlertsOutput{}, fmt.Errorf("severity_filter: %w", err)
		}
		f.Severity = sev
	}
	if input.TimeRangeHours > 0 {
		f.Since = time.Now().Add(-time.Duration(input.TimeRangeHours) * time.Hour)
	}

	alerts := s.ports.Alerts.List(f)
	return nil, AlertsOutput{Alerts: alerts, Count: len(alerts)}, nil
}

func (s *Server) handleStatistics(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ StatisticsInput,
) (*mcp.CallToolResult, StatisticsOutput, error) {
	stats := s.ports.Stats.Statistics()

	bySeverity := make(map[string]int, len(stats.BySeverity))
	for sev, n := range stats.BySeverity {
		bySeverity[string(sev)] = n
	}
	counts := make(map[string]int)
	for sev, n := range s.ports.Alerts.Counts() {
		counts[string(sev)] = n
	}

	return nil, StatisticsOutput{
		TotalDocuments:       stats.TotalDocuments,
		BySeverity:           bySeverity,
		Degraded:             stats.Degraded,
		AvgProcessingSeconds: stats.AvgProcessing.Seconds(),
		AlertCounts:          counts,
		AlertThreshold:       string(s.ports.Alerts.Threshold()),
	}, nil
}

func (s *Server) handleRecommend(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input RecommendInput,
) (*mcp.CallToolResult, RecommendOutput, error) {
	if len(input.Conditions) == 0 {
		return nil, RecommendOutput{}, fmt.Errorf("conditions are required")
	}
	return nil, RecommendOutput{Recommendations: triage.Recommend(input.Conditions)}, nil
}
