package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Param is a single free-form parameter object attached to a resource or supplied by a provider.
type Param map[string]any

// Params is an ordered list of parameter objects.
type Params []Param

// ResourceRef names a resource either as a bare identifier or as an
// identifier carrying its own parameters. Both JSON forms are accepted:
//
//	"https://catalog/resources/r1"
//	{"resource": "https://catalog/resources/r1", "params": [{"q": "x"}]}
type ResourceRef struct {
	Resource string
	Params   Params
}

// UnmarshalJSON accepts the string and object forms of a resource reference.
func (r *ResourceRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = ResourceRef{Resource: id}
		return nil
	}

	var obj struct {
		Resource string `json:"resource"`
		Params   Params `json:"params"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("registry: resource reference must be a string or an object: %w", err)
	}
	*r = ResourceRef{Resource: obj.Resource, Params: obj.Params}
	return nil
}

// MarshalJSON writes bare identifiers as strings and parameterised references as objects.
func (r ResourceRef) MarshalJSON() ([]byte, error) {
	if r.Params == nil {
		return json.Marshal(r.Resource)
	}
	return json.Marshal(struct {
		Resource string `json:"resource"`
		Params   Params `json:"params"`
	}{r.Resource, r.Params})
}

// ContractOffering is an entry of a contract's service offering list.
type ContractOffering struct {
	ServiceOffering string `json:"serviceOffering"`
	Participant     string `json:"participant"`
}

// ContractPurpose is an entry of a contract's purpose list.
type ContractPurpose struct {
	Purpose string `json:"purpose"`
}

// InfrastructureService is a processing step declared by a data processing chain.
type InfrastructureService struct {
	Participant     string `json:"participant"`
	ServiceOffering string `json:"serviceOffering"`
}

// DataProcessing is a data-processing chain declared by a contract.
type DataProcessing struct {
	CatalogID              string                  `json:"catalogId"`
	InfrastructureServices []InfrastructureService `json:"infrastructureServices,omitempty"`
}

// IsZero reports whether no processing chain is attached.
func (d DataProcessing) IsZero() bool {
	return d.CatalogID == "" && len(d.InfrastructureServices) == 0
}

// Contract is the subset of the contract service response used for data exchanges.
type Contract struct {
	ID               string             `json:"_id,omitempty"`
	DataProvider     string             `json:"dataProvider"`
	DataConsumer     string             `json:"dataConsumer"`
	ServiceOffering  string             `json:"serviceOffering"`
	ServiceOfferings []ContractOffering `json:"serviceOfferings"`
	Purpose          []ContractPurpose  `json:"purpose"`
	DataProcessings  []DataProcessing   `json:"dataProcessings"`
}

// FindOffering returns the offering entry whose serviceOffering equals id.
func (c Contract) FindOffering(id string) (ContractOffering, bool) {
	for _, so := range c.ServiceOfferings {
		if so.ServiceOffering == id {
			return so, true
		}
	}
	return ContractOffering{}, false
}

// CatalogData is a catalog descriptor for a service offering, resource or software.
type CatalogData struct {
	DataResources     []ResourceRef `json:"dataResources"`
	SoftwareResources []string      `json:"softwareResources"`
	ContainsPII       bool          `json:"containsPII"`
	UsePII            bool          `json:"usePII"`
}

// SelfDescription is a participant's published descriptor.
type SelfDescription struct {
	DataspaceEndpoint string `json:"dataspaceEndpoint"`
}
