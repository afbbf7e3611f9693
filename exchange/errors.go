package exchange

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no exchange exists for the provided identifier.
	ErrNotFound = errors.New("exchange: not found")
	// ErrResourceNotInOffering signals a selected resource the service offering does not declare.
	ErrResourceNotInOffering = errors.New("exchange: resource doesn't exist in the service offering")
	// ErrNoResources signals a flow that would establish an exchange without resources.
	ErrNoResources = fmt.Errorf("%w: no resource to exchange", ErrResourceNotInOffering)
	// ErrPIIViolation signals a resource or consuming software that handles PII.
	ErrPIIViolation = errors.New("exchange: a resource uses PII")
	// ErrMissingProviderEndpoint signals a provider self-description without a dataspace endpoint.
	ErrMissingProviderEndpoint = errors.New("exchange: provider missing dataspace endpoint")
	// ErrMissingConsumerEndpoint signals a consumer self-description without a dataspace endpoint.
	ErrMissingConsumerEndpoint = errors.New("exchange: consumer missing dataspace endpoint")
	// ErrMissingParameters signals an ecosystem trigger without resourceId or purposeId.
	ErrMissingParameters = errors.New("exchange: missing parameters")
	// ErrInvalidPurpose signals a purpose that is not part of the contract.
	ErrInvalidPurpose = errors.New("exchange: wrong purpose given")
	// ErrInvalidResource signals a resource that is not part of the contract.
	ErrInvalidResource = errors.New("exchange: wrong resource given")
	// ErrEmptyDataProcessingList signals a contract without data processings.
	ErrEmptyDataProcessingList = errors.New("exchange: data processing is empty in the contract")
	// ErrDataProcessingNotFound signals an unknown data processing id.
	ErrDataProcessingNotFound = errors.New("exchange: data processing not found in the contract")
	// ErrRoleResolutionFailed signals that neither participant resolves to the local endpoint.
	ErrRoleResolutionFailed = errors.New("exchange: local endpoint matches neither provider nor consumer")
	// ErrInvalidReplica signals a replication request that breaks the record invariants.
	ErrInvalidReplica = errors.New("exchange: invalid replica")
)
