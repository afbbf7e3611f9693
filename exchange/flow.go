package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"exchangeflow/logging"
	"exchangeflow/registry"
)

// ContractReader fetches contracts from the contract service.
type ContractReader interface {
	GetContract(ctx context.Context, id string) (registry.Contract, error)
}

// SelfDescriber fetches a participant's self-description from the URL found in contract data.
type SelfDescriber interface {
	GetSelfDescription(ctx context.Context, url string) (registry.SelfDescription, error)
}

// FlowDeps groups the collaborators of the flow resolvers.
type FlowDeps struct {
	Contracts    ContractReader
	Catalog      CatalogReader
	Participants SelfDescriber
	Replicator   Replicator
	Repo         Repository
}

// FlowService establishes data exchanges from a contract. Flows share no
// in-process state; concurrent triggers for the same contract each create
// their own record.
type FlowService struct {
	contracts     ContractReader
	catalog       CatalogReader
	participants  SelfDescriber
	replicator    Replicator
	repo          Repository
	gate          *PIIGate
	localEndpoint string
	idGenerator   func() string
	now           func() time.Time
	logger        *zap.Logger
}

// NewFlowService wires the resolvers. localEndpoint is this node's own
// advertised endpoint and drives role inference.
func NewFlowService(deps FlowDeps, localEndpoint string, logger *zap.Logger) *FlowService {
	return &FlowService{
		contracts:     deps.Contracts,
		catalog:       deps.Catalog,
		participants:  deps.Participants,
		replicator:    deps.Replicator,
		repo:          deps.Repo,
		gate:          NewPIIGate(deps.Catalog),
		localEndpoint: localEndpoint,
		idGenerator:   func() string { return uuid.NewString() },
		now:           time.Now,
		logger:        logging.OrNop(logger),
	}
}

func (s *FlowService) WithIDGenerator(gen func() string) *FlowService {
	s.idGenerator = gen
	return s
}

func (s *FlowService) WithClock(now func() time.Time) *FlowService {
	s.now = now
	return s
}

// BilateralRequest triggers an exchange between the two participants named by a contract.
type BilateralRequest struct {
	Contract         string
	Resources        []registry.ResourceRef
	ProviderParams   registry.Params
	DataProcessingID string
}

// EcosystemRequest triggers an exchange whose participants are found through
// the contract's service offerings.
type EcosystemRequest struct {
	Contract         string
	ResourceID       string
	PurposeID        string
	Resources        []registry.ResourceRef
	ProviderParams   registry.Params
	DataProcessingID string
}

// TriggerBilateralFlow validates the request against the contract and catalog,
// creates the local record and replicates it to the counterpart.
func (s *FlowService) TriggerBilateralFlow(ctx context.Context, req BilateralRequest) (res FlowResult, err error) {
	defer func() { s.finish(flowBilateral, req.Contract, err) }()

	contract, err := s.contracts.GetContract(ctx, req.Contract)
	if err != nil {
		return FlowResult{}, fmt.Errorf("exchange: fetch contract: %w", err)
	}

	provider, err := s.participants.GetSelfDescription(ctx, contract.DataProvider)
	if err != nil {
		return FlowResult{}, fmt.Errorf("exchange: fetch provider self-description: %w", err)
	}

	offering, err := s.catalog.GetCatalogData(ctx, contract.ServiceOffering)
	if err != nil {
		return FlowResult{}, fmt.Errorf("exchange: fetch service offering: %w", err)
	}

	if provider.DataspaceEndpoint == "" {
		return FlowResult{}, ErrMissingProviderEndpoint
	}

	dataProcessing, err := s.dataProcessing(req.DataProcessingID, contract)
	if err != nil {
		return FlowResult{}, err
	}

	mapped, err := MapResources(req.Resources, offering.DataResources, contract.ServiceOffering)
	if err != nil {
		return FlowResult{}, err
	}
	if len(mapped) == 0 {
		return FlowResult{}, fmt.Errorf("%w: offering %s", ErrNoResources, contract.ServiceOffering)
	}

	if len(contract.Purpose) == 0 || contract.Purpose[0].Purpose == "" {
		return FlowResult{}, fmt.Errorf("%w: contract declares no purpose", ErrInvalidPurpose)
	}
	purposeID := contract.Purpose[0].Purpose

	if err := s.gate.Check(ctx, mapped, purposeID); err != nil {
		return FlowResult{}, err
	}

	record := DataExchange{
		Resources:      mapped,
		PurposeID:      purposeID,
		Contract:       req.Contract,
		ProviderParams: req.ProviderParams,
		DataProcessing: dataProcessing,
	}

	role := ResolveBilateralRole(s.localEndpoint, provider.DataspaceEndpoint)
	switch role {
	case RoleConsumer:
		record.ProviderEndpoint = provider.DataspaceEndpoint
	case RoleProvider:
		consumer, err := s.participants.GetSelfDescription(ctx, contract.DataConsumer)
		if err != nil {
			return FlowResult{}, fmt.Errorf("exchange: fetch consumer self-description: %w", err)
		}
		if consumer.DataspaceEndpoint == "" {
			return FlowResult{}, ErrMissingConsumerEndpoint
		}
		record.ConsumerEndpoint = consumer.DataspaceEndpoint
	}

	created, replicated, err := s.establish(ctx, role, record)
	if err != nil {
		return FlowResult{}, err
	}

	return FlowResult{
		Exchange:         created,
		ProviderEndpoint: provider.DataspaceEndpoint,
		Replicated:       replicated,
	}, nil
}

// TriggerEcosystemFlow validates the request against the contract's service
// offerings, resolves both participants, creates the local record and
// replicates it to the counterpart.
func (s *FlowService) TriggerEcosystemFlow(ctx context.Context, req EcosystemRequest) (res FlowResult, err error) {
	defer func() { s.finish(flowEcosystem, req.Contract, err) }()

	if req.ResourceID == "" || req.PurposeID == "" {
		return FlowResult{}, fmt.Errorf("%w: resourceId and purposeId are required", ErrMissingParameters)
	}

	contract, err := s.contracts.GetContract(ctx, req.Contract)
	if err != nil {
		return FlowResult{}, fmt.Errorf("exchange: fetch contract: %w", err)
	}

	dataProcessing, err := s.dataProcessing(req.DataProcessingID, contract)
	if err != nil {
		return FlowResult{}, err
	}

	purposeOffering, ok := contract.FindOffering(req.PurposeID)
	if !ok {
		return FlowResult{}, fmt.Errorf("%w: purpose %s is not in contract %s", ErrInvalidPurpose, req.PurposeID, req.Contract)
	}
	resourceOffering, ok := contract.FindOffering(req.ResourceID)
	if !ok {
		return FlowResult{}, fmt.Errorf("%w: resource %s is not in contract %s", ErrInvalidResource, req.ResourceID, req.Contract)
	}

	offering, err := s.catalog.GetCatalogData(ctx, req.ResourceID)
	if err != nil {
		return FlowResult{}, fmt.Errorf("exchange: fetch service offering: %w", err)
	}

	mapped, err := MapResources(req.Resources, offering.DataResources, req.ResourceID)
	if err != nil {
		return FlowResult{}, err
	}
	if len(mapped) == 0 {
		return FlowResult{}, fmt.Errorf("%w: offering %s", ErrNoResources, req.ResourceID)
	}

	consumer, err := s.participants.GetSelfDescription(ctx, purposeOffering.Participant)
	if err != nil {
		return FlowResult{}, fmt.Errorf("exchange: fetch consumer self-description: %w", err)
	}
	provider, err := s.participants.GetSelfDescription(ctx, resourceOffering.Participant)
	if err != nil {
		return FlowResult{}, fmt.Errorf("exchange: fetch provider self-description: %w", err)
	}

	if err := s.gate.Check(ctx, mapped, req.PurposeID); err != nil {
		return FlowResult{}, err
	}

	role, err := ResolveEcosystemRole(s.localEndpoint, provider.DataspaceEndpoint, consumer.DataspaceEndpoint)
	if err != nil {
		return FlowResult{}, fmt.Errorf("%w: local %s, provider %s, consumer %s",
			err, s.localEndpoint, provider.DataspaceEndpoint, consumer.DataspaceEndpoint)
	}

	record := DataExchange{
		Resources:      mapped,
		PurposeID:      req.PurposeID,
		Contract:       req.Contract,
		ProviderParams: req.ProviderParams,
		DataProcessing: dataProcessing,
	}
	switch role {
	case RoleConsumer:
		if provider.DataspaceEndpoint == "" {
			return FlowResult{}, ErrMissingProviderEndpoint
		}
		record.ProviderEndpoint = provider.DataspaceEndpoint
	case RoleProvider:
		if consumer.DataspaceEndpoint == "" {
			return FlowResult{}, ErrMissingConsumerEndpoint
		}
		record.ConsumerEndpoint = consumer.DataspaceEndpoint
	}

	created, replicated, err := s.establish(ctx, role, record)
	if err != nil {
		return FlowResult{}, err
	}

	return FlowResult{
		Exchange:         created,
		ProviderEndpoint: provider.DataspaceEndpoint,
		Replicated:       replicated,
	}, nil
}

func (s *FlowService) dataProcessing(id string, contract registry.Contract) (registry.DataProcessing, error) {
	if id == "" {
		return registry.DataProcessing{}, nil
	}
	return VerifyDataProcessing(id, contract.DataProcessings)
}

// establish commits the record locally, then propagates it to the counterpart.
// The local record is kept whatever the outcome of the propagation.
func (s *FlowService) establish(ctx context.Context, role Role, record DataExchange) (DataExchange, bool, error) {
	now := s.now().UTC()
	record.ID = s.idGenerator()
	record.Status = StatusPending
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.ProviderParams == nil {
		record.ProviderParams = registry.Params{}
	}

	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return DataExchange{}, false, err
	}

	counterpart, counterpartRole := created.Counterpart()
	s.logger.Info("data exchange created",
		logging.WithExchangeID(created.ID),
		logging.WithContract(created.Contract),
		logging.WithPurpose(created.PurposeID),
		logging.WithRole(string(role)),
		logging.WithEndpoint(counterpart))

	return created, s.replicate(ctx, created, role, counterpart, counterpartRole), nil
}

func (s *FlowService) finish(flow, contract string, err error) {
	observeFlow(flow, err)
	if err != nil {
		s.logger.Warn("data exchange flow rejected",
			logging.WithFlow(flow), logging.WithContract(contract), zap.Error(err))
	}
}
