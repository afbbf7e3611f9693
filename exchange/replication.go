package exchange

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"exchangeflow/logging"
	"exchangeflow/registry"
)

// Replica is the creation request sent to the counterpart of a new exchange.
// Its endpoint fields are oriented for the receiver: a provider receives the
// consumer's endpoint and the other way round.
type Replica struct {
	ProviderEndpoint string
	ConsumerEndpoint string
	Resources        []MappedResource
	PurposeID        string
	Contract         string
	ProviderParams   registry.Params
	DataProcessing   registry.DataProcessing
	// Origin is the role of the sender.
	Origin Role
}

// Replicator delivers replicas to a counterpart endpoint.
type Replicator interface {
	Replicate(ctx context.Context, endpoint string, replica Replica) error
}

// NewReplica builds the counterpart's view of d as sent by a node playing role from localEndpoint.
func NewReplica(d DataExchange, role Role, localEndpoint string) Replica {
	r := Replica{
		Resources:      d.Resources,
		PurposeID:      d.PurposeID,
		Contract:       d.Contract,
		ProviderParams: d.ProviderParams,
		DataProcessing: d.DataProcessing,
		Origin:         role,
	}
	if role == RoleConsumer {
		r.ConsumerEndpoint = localEndpoint
	} else {
		r.ProviderEndpoint = localEndpoint
	}
	return r
}

// replicate is best effort: a failure is logged and counted, never returned.
func (s *FlowService) replicate(ctx context.Context, d DataExchange, role Role, counterpart string, counterpartRole Role) bool {
	if s.replicator == nil {
		return false
	}

	err := s.replicator.Replicate(ctx, counterpart, NewReplica(d, role, s.localEndpoint))
	if err != nil {
		replicationFailures.WithLabelValues(string(counterpartRole)).Inc()
		s.logger.Warn("replicate data exchange to counterpart",
			logging.WithExchangeID(d.ID),
			logging.WithEndpoint(counterpart),
			logging.WithRole(string(counterpartRole)),
			zap.Error(err))
		return false
	}
	return true
}

// AcceptReplica stores the exchange announced by a counterpart as a new local
// PENDING record with its own id.
func (s *FlowService) AcceptReplica(ctx context.Context, r Replica) (DataExchange, error) {
	if (r.ProviderEndpoint == "") == (r.ConsumerEndpoint == "") {
		return DataExchange{}, fmt.Errorf("%w: exactly one of providerEndpoint and consumerEndpoint is required", ErrInvalidReplica)
	}
	switch r.Origin {
	case "":
	case RoleConsumer:
		if r.ConsumerEndpoint == "" {
			return DataExchange{}, fmt.Errorf("%w: origin consumer without consumerEndpoint", ErrInvalidReplica)
		}
	case RoleProvider:
		if r.ProviderEndpoint == "" {
			return DataExchange{}, fmt.Errorf("%w: origin provider without providerEndpoint", ErrInvalidReplica)
		}
	default:
		return DataExchange{}, fmt.Errorf("%w: unknown origin %q", ErrInvalidReplica, r.Origin)
	}
	if len(r.Resources) == 0 {
		return DataExchange{}, fmt.Errorf("%w: resources are required", ErrInvalidReplica)
	}
	if r.Contract == "" || r.PurposeID == "" {
		return DataExchange{}, fmt.Errorf("%w: contract and purposeId are required", ErrInvalidReplica)
	}

	now := s.now().UTC()
	params := r.ProviderParams
	if params == nil {
		params = registry.Params{}
	}
	created, err := s.repo.Create(ctx, DataExchange{
		ID:               s.idGenerator(),
		ProviderEndpoint: r.ProviderEndpoint,
		ConsumerEndpoint: r.ConsumerEndpoint,
		Resources:        r.Resources,
		PurposeID:        r.PurposeID,
		Contract:         r.Contract,
		Status:           StatusPending,
		ProviderParams:   params,
		DataProcessing:   r.DataProcessing,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return DataExchange{}, err
	}

	s.logger.Info("data exchange replica accepted",
		logging.WithExchangeID(created.ID),
		logging.WithContract(created.Contract),
		logging.WithOrigin(string(r.Origin)))
	return created, nil
}
