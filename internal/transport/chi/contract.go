package chi

import (
	"context"

	"github.com/ishan121028/RadiologyAI/internal/domain/report"
	"github.com/ishan121028/RadiologyAI/internal/domain/triage"
	"github.com/ishan121028/RadiologyAI/internal/usecase/alertbroker"
	healthuc "github.com/ishan121028/RadiologyAI/internal/usecase/health"
	indexuc "github.com/ishan121028/RadiologyAI/internal/usecase/index"
	queryuc "github.com/ishan121028/RadiologyAI/internal/usecase/query"
)

// Index is the document index surface used by the handlers.
type Index interface {
	Retrieve(ctx context.Context, query string, k int) ([]report.Scored, error)
	FindByPatient(ctx context.Context, patientID string) ([]report.Entry, error)
	ListDocuments(ctx context.Context) ([]report.Entry, error)
	Statistics() indexuc.Statistics
}

// Answerer generates grounded answers.
type Answerer interface {
	Answer(ctx context.Context, question, patientID string) (queryuc.Answer, error)
}

// AlertSource feeds the websocket channel and the statistics handler.
type AlertSource interface {
	Subscribe() alertbroker.Subscription
	Unsubscribe(id string)
	Counts() map[triage.Severity]int
	Threshold() triage.Severity
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
