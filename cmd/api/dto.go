package main

import (
	"bytes"
	"encoding/json"
	"time"

	"exchangeflow/exchange"
	"exchangeflow/registry"
)

type bilateralRequest struct {
	Contract         string                 `json:"contract" validate:"required"`
	Resources        []registry.ResourceRef `json:"resources"`
	ProviderParams   registry.Params        `json:"providerParams"`
	DataProcessingID string                 `json:"dataProcessingId"`
}

// ecosystemRequest leaves resourceId and purposeId to the flow, which reports
// them as missing parameters.
type ecosystemRequest struct {
	Contract         string                 `json:"contract" validate:"required"`
	ResourceID       string                 `json:"resourceId"`
	PurposeID        string                 `json:"purposeId"`
	Resources        []registry.ResourceRef `json:"resources"`
	ProviderParams   registry.Params        `json:"providerParams"`
	DataProcessingID string                 `json:"dataProcessingId"`
}

type reportErrorRequest struct {
	Origin  string          `json:"origin" validate:"required"`
	Payload json.RawMessage `json:"payload"`
}

// payload keeps JSON strings as their text and any other JSON value verbatim.
func (r reportErrorRequest) payload() *string {
	raw := bytes.TrimSpace(r.Payload)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return &text
	}
	text = string(raw)
	return &text
}

type reportSuccessRequest struct {
	Origin string `json:"origin" validate:"required"`
}

type resourceDTO struct {
	ServiceOffering string          `json:"serviceOffering"`
	Resource        string          `json:"resource" validate:"required"`
	Params          registry.Params `json:"params,omitempty"`
}

type updateRequest struct {
	Status         *string                  `json:"status" validate:"omitempty,oneof=PENDING PROVIDER_EXPORT_ERROR CONSUMER_IMPORT_ERROR UNDEFINED_ERROR EXPORT_SUCCESS IMPORT_SUCCESS"`
	Payload        *string                  `json:"payload"`
	PurposeID      *string                  `json:"purposeId" validate:"omitempty,min=1"`
	Resources      []resourceDTO            `json:"resources" validate:"omitempty,min=1,dive"`
	ProviderParams registry.Params          `json:"providerParams"`
	DataProcessing *registry.DataProcessing `json:"dataProcessing"`
}

func (u updateRequest) patch() exchange.Patch {
	p := exchange.Patch{
		Payload:        u.Payload,
		PurposeID:      u.PurposeID,
		ProviderParams: u.ProviderParams,
		DataProcessing: u.DataProcessing,
	}
	if u.Status != nil {
		status := exchange.Status(*u.Status)
		p.Status = &status
	}
	if u.Resources != nil {
		p.Resources = make([]exchange.MappedResource, 0, len(u.Resources))
		for _, res := range u.Resources {
			p.Resources = append(p.Resources, exchange.MappedResource(res))
		}
	}
	return p
}

type exchangeResponse struct {
	ID               string                  `json:"id"`
	ProviderEndpoint string                  `json:"providerEndpoint,omitempty"`
	ConsumerEndpoint string                  `json:"consumerEndpoint,omitempty"`
	Resources        []resourceDTO           `json:"resources"`
	PurposeID        string                  `json:"purposeId"`
	Contract         string                  `json:"contract"`
	Status           string                  `json:"status"`
	ProviderParams   registry.Params         `json:"providerParams"`
	DataProcessing   registry.DataProcessing `json:"dataProcessing"`
	Payload          *string                 `json:"payload,omitempty"`
	CreatedAt        string                  `json:"createdAt"`
	UpdatedAt        string                  `json:"updatedAt"`
}

func toExchangeResponse(d exchange.DataExchange) exchangeResponse {
	resources := make([]resourceDTO, 0, len(d.Resources))
	for _, res := range d.Resources {
		resources = append(resources, resourceDTO(res))
	}
	params := d.ProviderParams
	if params == nil {
		params = registry.Params{}
	}
	return exchangeResponse{
		ID:               d.ID,
		ProviderEndpoint: d.ProviderEndpoint,
		ConsumerEndpoint: d.ConsumerEndpoint,
		Resources:        resources,
		PurposeID:        d.PurposeID,
		Contract:         d.Contract,
		Status:           string(d.Status),
		ProviderParams:   params,
		DataProcessing:   d.DataProcessing,
		Payload:          d.Payload,
		CreatedAt:        d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type flowResponse struct {
	Exchange         exchangeResponse `json:"exchange"`
	ProviderEndpoint string           `json:"providerEndpoint"`
	Replicated       bool             `json:"replicated"`
}

func toFlowResponse(res exchange.FlowResult) flowResponse {
	return flowResponse{
		Exchange:         toExchangeResponse(res.Exchange),
		ProviderEndpoint: res.ProviderEndpoint,
		Replicated:       res.Replicated,
	}
}
