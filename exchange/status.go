package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"exchangeflow/logging"
)

// Notifier publishes status-change events. Failures never fail a transition.
type Notifier interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// StatusService drives the exchange state machine. ReportError and
// ReportSuccess are the guarded transitions; Update is the administrative
// override that writes whatever it is given.
type StatusService struct {
	repo     Repository
	notifier Notifier
	subject  string
	now      func() time.Time
	logger   *zap.Logger
}

func NewStatusService(repo Repository, logger *zap.Logger) *StatusService {
	return &StatusService{
		repo:   repo,
		now:    time.Now,
		logger: logging.OrNop(logger),
	}
}

// WithNotifier publishes every applied transition on subject.
func (s *StatusService) WithNotifier(n Notifier, subject string) *StatusService {
	s.notifier = n
	s.subject = subject
	return s
}

func (s *StatusService) WithClock(now func() time.Time) *StatusService {
	s.now = now
	return s
}

// ErrorStatusFor maps a report origin to its error status.
func ErrorStatusFor(origin string) Status {
	switch Role(origin) {
	case RoleProvider:
		return StatusProviderExportError
	case RoleConsumer:
		return StatusConsumerImportError
	default:
		return StatusUndefinedError
	}
}

// SuccessStatusFor maps a report origin to its success status. Unknown origins
// map to UNDEFINED_ERROR.
func SuccessStatusFor(origin string) Status {
	switch Role(origin) {
	case RoleProvider:
		return StatusExportSuccess
	case RoleConsumer:
		return StatusImportSuccess
	default:
		return StatusUndefinedError
	}
}

// ReportError records a failure reported by origin. A nil payload leaves the stored payload untouched.
func (s *StatusService) ReportError(ctx context.Context, id, origin string, payload *string) (DataExchange, error) {
	status := ErrorStatusFor(origin)
	d, err := s.repo.Update(ctx, id, Patch{
		Status:    &status,
		Payload:   payload,
		UpdatedAt: s.now().UTC(),
	})
	if err != nil {
		return DataExchange{}, fmt.Errorf("exchange: report error: %w", err)
	}

	s.logger.Warn("data exchange error reported",
		logging.WithExchangeID(id), logging.WithOrigin(origin), logging.WithStatus(string(status)))
	s.applied(ctx, d, origin)
	return d, nil
}

// ReportSuccess records a success reported by origin.
func (s *StatusService) ReportSuccess(ctx context.Context, id, origin string) (DataExchange, error) {
	status := SuccessStatusFor(origin)
	d, err := s.repo.Update(ctx, id, Patch{
		Status:    &status,
		UpdatedAt: s.now().UTC(),
	})
	if err != nil {
		return DataExchange{}, fmt.Errorf("exchange: report success: %w", err)
	}

	s.logger.Info("data exchange success reported",
		logging.WithExchangeID(id), logging.WithOrigin(origin), logging.WithStatus(string(status)))
	s.applied(ctx, d, origin)
	return d, nil
}

// Update overwrites the patched fields without checking transition legality.
func (s *StatusService) Update(ctx context.Context, id string, patch Patch) (DataExchange, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return DataExchange{}, fmt.Errorf("exchange: unknown status %q", *patch.Status)
	}
	patch.UpdatedAt = s.now().UTC()

	d, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return DataExchange{}, fmt.Errorf("exchange: update: %w", err)
	}

	s.logger.Info("data exchange overridden", logging.WithExchangeID(id), logging.WithStatus(string(d.Status)))
	s.applied(ctx, d, "admin")
	return d, nil
}

func (s *StatusService) Get(ctx context.Context, id string) (DataExchange, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *StatusService) List(ctx context.Context) ([]DataExchange, error) {
	return s.repo.List(ctx)
}

type statusEvent struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Origin    string    `json:"origin"`
	Contract  string    `json:"contract"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *StatusService) applied(ctx context.Context, d DataExchange, origin string) {
	statusReports.WithLabelValues(string(d.Status)).Inc()
	if s.notifier == nil {
		return
	}

	payload, err := json.Marshal(statusEvent{
		ID:        d.ID,
		Status:    d.Status,
		Origin:    origin,
		Contract:  d.Contract,
		UpdatedAt: d.UpdatedAt,
	})
	if err != nil {
		s.logger.Warn("marshal status event", zap.Error(err), logging.WithExchangeID(d.ID))
		return
	}
	if err := s.notifier.Publish(ctx, s.subject, payload); err != nil {
		s.logger.Warn("publish status event", zap.Error(err), logging.WithExchangeID(d.ID))
	}
}
