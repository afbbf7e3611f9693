package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"exchangeflow/exchange"
	"exchangeflow/logging"
	"exchangeflow/participant"
	"exchangeflow/registry"
)

type flowService interface {
	TriggerBilateralFlow(ctx context.Context, req exchange.BilateralRequest) (exchange.FlowResult, error)
	TriggerEcosystemFlow(ctx context.Context, req exchange.EcosystemRequest) (exchange.FlowResult, error)
	AcceptReplica(ctx context.Context, r exchange.Replica) (exchange.DataExchange, error)
}

type statusService interface {
	Get(ctx context.Context, id string) (exchange.DataExchange, error)
	List(ctx context.Context) ([]exchange.DataExchange, error)
	Update(ctx context.Context, id string, patch exchange.Patch) (exchange.DataExchange, error)
	ReportError(ctx context.Context, id, origin string, payload *string) (exchange.DataExchange, error)
	ReportSuccess(ctx context.Context, id, origin string) (exchange.DataExchange, error)
}

// Server is the REST surface of the node.
type Server struct {
	flows             flowService
	statuses          statusService
	validate          *validator.Validate
	localEndpoint     string
	replicationSecret string
	logger            *zap.Logger
}

func NewServer(flows flowService, statuses statusService, localEndpoint, replicationSecret string, logger *zap.Logger) *Server {
	return &Server{
		flows:             flows,
		statuses:          statuses,
		validate:          validator.New(),
		localEndpoint:     localEndpoint,
		replicationSecret: replicationSecret,
		logger:            logging.OrNop(logger),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/exchanges", func(api chi.Router) {
		api.Get("/", s.handleListExchanges)
		api.Get("/{id}", s.handleGetExchange)
		api.Put("/{id}", s.handleUpdateExchange)
		api.Put("/{id}/error", s.handleReportError)
		api.Put("/{id}/success", s.handleReportSuccess)
	})

	r.Post("/flows/bilateral", s.handleBilateralFlow)
	r.Post("/flows/ecosystem", s.handleEcosystemFlow)

	r.With(s.requireReplicationToken).Post(participant.ReplicationPath, s.handleAcceptReplica)

	return r
}

func (s *Server) handleListExchanges(w http.ResponseWriter, r *http.Request) {
	list, err := s.statuses.List(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]exchangeResponse, 0, len(list))
	for _, d := range list {
		out = append(out, toExchangeResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"exchanges": out})
}

func (s *Server) handleGetExchange(w http.ResponseWriter, r *http.Request) {
	d, err := s.statuses.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExchangeResponse(d))
}

func (s *Server) handleUpdateExchange(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !s.decode(w, r, &req) {
		return
	}
	d, err := s.statuses.Update(r.Context(), chi.URLParam(r, "id"), req.patch())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExchangeResponse(d))
}

func (s *Server) handleReportError(w http.ResponseWriter, r *http.Request) {
	var req reportErrorRequest
	if !s.decode(w, r, &req) {
		return
	}
	d, err := s.statuses.ReportError(r.Context(), chi.URLParam(r, "id"), req.Origin, req.payload())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExchangeResponse(d))
}

func (s *Server) handleReportSuccess(w http.ResponseWriter, r *http.Request) {
	var req reportSuccessRequest
	if !s.decode(w, r, &req) {
		return
	}
	d, err := s.statuses.ReportSuccess(r.Context(), chi.URLParam(r, "id"), req.Origin)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExchangeResponse(d))
}

func (s *Server) handleBilateralFlow(w http.ResponseWriter, r *http.Request) {
	var req bilateralRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.flows.TriggerBilateralFlow(r.Context(), exchange.BilateralRequest{
		Contract:         req.Contract,
		Resources:        req.Resources,
		ProviderParams:   req.ProviderParams,
		DataProcessingID: req.DataProcessingID,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFlowResponse(res))
}

func (s *Server) handleEcosystemFlow(w http.ResponseWriter, r *http.Request) {
	var req ecosystemRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.flows.TriggerEcosystemFlow(r.Context(), exchange.EcosystemRequest{
		Contract:         req.Contract,
		ResourceID:       req.ResourceID,
		PurposeID:        req.PurposeID,
		Resources:        req.Resources,
		ProviderParams:   req.ProviderParams,
		DataProcessingID: req.DataProcessingID,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFlowResponse(res))
}

func (s *Server) handleAcceptReplica(w http.ResponseWriter, r *http.Request) {
	var req participant.ReplicationRequest
	if !s.decode(w, r, &req) {
		return
	}
	d, err := s.flows.AcceptReplica(r.Context(), req.ToReplica())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExchangeResponse(d))
}

// requireReplicationToken checks the bearer token of replicas when a shared secret is configured.
func (s *Server) requireReplicationToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.replicationSecret == "" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}
		issuer, err := participant.VerifyToken(token, s.replicationSecret, s.localEndpoint)
		if err != nil {
			s.logger.Warn("replica token rejected", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid bearer token")
			return
		}
		s.logger.Debug("replica token accepted", logging.WithEndpoint(issuer))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := readJSON(r, dst); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Namespace()+" failed on "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, code, err.Error())
}

// classify maps domain and collaborator errors to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, exchange.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, exchange.ErrPIIViolation):
		return http.StatusForbidden, "PII_VIOLATION"
	case errors.Is(err, exchange.ErrRoleResolutionFailed):
		return http.StatusConflict, "ROLE_RESOLUTION_FAILED"
	case errors.Is(err, exchange.ErrMissingParameters):
		return http.StatusBadRequest, "MISSING_PARAMETERS"
	case errors.Is(err, exchange.ErrResourceNotInOffering):
		return http.StatusBadRequest, "RESOURCE_NOT_IN_OFFERING"
	case errors.Is(err, exchange.ErrInvalidPurpose):
		return http.StatusBadRequest, "INVALID_PURPOSE"
	case errors.Is(err, exchange.ErrInvalidResource):
		return http.StatusBadRequest, "INVALID_RESOURCE"
	case errors.Is(err, exchange.ErrEmptyDataProcessingList):
		return http.StatusBadRequest, "EMPTY_DATA_PROCESSING_LIST"
	case errors.Is(err, exchange.ErrDataProcessingNotFound):
		return http.StatusBadRequest, "DATA_PROCESSING_NOT_FOUND"
	case errors.Is(err, exchange.ErrInvalidReplica):
		return http.StatusBadRequest, "INVALID_REPLICA"
	case errors.Is(err, exchange.ErrMissingProviderEndpoint):
		return http.StatusBadGateway, "MISSING_PROVIDER_ENDPOINT"
	case errors.Is(err, exchange.ErrMissingConsumerEndpoint):
		return http.StatusBadGateway, "MISSING_CONSUMER_ENDPOINT"
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, registry.ErrUnexpectedStatus),
		errors.Is(err, registry.ErrUnresolvable),
		errors.Is(err, registry.ErrUnreachable),
		errors.Is(err, registry.ErrMalformedResponse):
		return http.StatusBadGateway, "UPSTREAM_LOOKUP_FAILED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
