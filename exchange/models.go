package exchange

import (
	"time"

	"exchangeflow/registry"
)

// Status is the lifecycle state of a data exchange.
type Status string

const (
	StatusPending             Status = "PENDING"
	StatusProviderExportError Status = "PROVIDER_EXPORT_ERROR"
	StatusConsumerImportError Status = "CONSUMER_IMPORT_ERROR"
	StatusUndefinedError      Status = "UNDEFINED_ERROR"
	StatusExportSuccess       Status = "EXPORT_SUCCESS"
	StatusImportSuccess       Status = "IMPORT_SUCCESS"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProviderExportError, StatusConsumerImportError,
		StatusUndefinedError, StatusExportSuccess, StatusImportSuccess:
		return true
	default:
		return false
	}
}

// MappedResource is a resource selected for an exchange, tied to the offering that declares it.
type MappedResource struct {
	ServiceOffering string
	Resource        string
	Params          registry.Params
}

// DataExchange mirrors the data_exchanges table. Exactly one of ProviderEndpoint
// and ConsumerEndpoint is set; it names the remote counterpart.
type DataExchange struct {
	ID               string
	ProviderEndpoint string
	ConsumerEndpoint string
	Resources        []MappedResource
	PurposeID        string
	Contract         string
	Status           Status
	ProviderParams   registry.Params
	DataProcessing   registry.DataProcessing
	Payload          *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Counterpart returns the remote endpoint and the role it plays.
func (d DataExchange) Counterpart() (string, Role) {
	if d.ProviderEndpoint != "" {
		return d.ProviderEndpoint, RoleProvider
	}
	return d.ConsumerEndpoint, RoleConsumer
}

// Patch enumerates the fields an administrative update may overwrite. Nil fields are left untouched.
type Patch struct {
	Status         *Status
	Payload        *string
	Resources      []MappedResource
	PurposeID      *string
	ProviderParams registry.Params
	DataProcessing *registry.DataProcessing
	UpdatedAt      time.Time
}

// FlowResult is returned by the flow resolvers.
type FlowResult struct {
	Exchange         DataExchange
	ProviderEndpoint string
	// Replicated is false when the counterpart could not be reached; the local record is kept.
	Replicated bool
}
