package participant

import (
	"exchangeflow/exchange"
	"exchangeflow/registry"
)

// ReplicationRequest is the JSON body of POST /private/exchanges.
type ReplicationRequest struct {
	ProviderEndpoint string                  `json:"providerEndpoint,omitempty"`
	ConsumerEndpoint string                  `json:"consumerEndpoint,omitempty"`
	Resources        []ReplicatedResource    `json:"resources" validate:"required,min=1,dive"`
	PurposeID        string                  `json:"purposeId" validate:"required"`
	Contract         string                  `json:"contract" validate:"required"`
	ProviderParams   registry.Params         `json:"providerParams,omitempty"`
	DataProcessing   registry.DataProcessing `json:"dataProcessing"`
	Origin           string                  `json:"origin" validate:"omitempty,oneof=provider consumer"`
}

type ReplicatedResource struct {
	ServiceOffering string          `json:"serviceOffering"`
	Resource        string          `json:"resource" validate:"required"`
	Params          registry.Params `json:"params,omitempty"`
}

func FromReplica(r exchange.Replica) ReplicationRequest {
	resources := make([]ReplicatedResource, 0, len(r.Resources))
	for _, res := range r.Resources {
		resources = append(resources, ReplicatedResource(res))
	}
	return ReplicationRequest{
		ProviderEndpoint: r.ProviderEndpoint,
		ConsumerEndpoint: r.ConsumerEndpoint,
		Resources:        resources,
		PurposeID:        r.PurposeID,
		Contract:         r.Contract,
		ProviderParams:   r.ProviderParams,
		DataProcessing:   r.DataProcessing,
		Origin:           string(r.Origin),
	}
}

func (req ReplicationRequest) ToReplica() exchange.Replica {
	resources := make([]exchange.MappedResource, 0, len(req.Resources))
	for _, res := range req.Resources {
		resources = append(resources, exchange.MappedResource(res))
	}
	return exchange.Replica{
		ProviderEndpoint: req.ProviderEndpoint,
		ConsumerEndpoint: req.ConsumerEndpoint,
		Resources:        resources,
		PurposeID:        req.PurposeID,
		Contract:         req.Contract,
		ProviderParams:   req.ProviderParams,
		DataProcessing:   req.DataProcessing,
		Origin:           exchange.Role(req.Origin),
	}
}
