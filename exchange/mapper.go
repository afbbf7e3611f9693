package exchange

import (
	"fmt"

	"exchangeflow/registry"
)

// MapResources reconciles a caller selection with the resources declared by a
// service offering. An empty selection maps every declared resource; otherwise
// every selected resource must be declared, or nothing is mapped.
func MapResources(selection []registry.ResourceRef, declared []registry.ResourceRef, serviceOffering string) ([]MappedResource, error) {
	if len(selection) == 0 {
		mapped := make([]MappedResource, 0, len(declared))
		for _, ref := range declared {
			mapped = append(mapped, MappedResource{
				ServiceOffering: serviceOffering,
				Resource:        ref.Resource,
				Params:          ref.Params,
			})
		}
		return mapped, nil
	}

	available := make(map[string]struct{}, len(declared))
	for _, ref := range declared {
		available[ref.Resource] = struct{}{}
	}

	mapped := make([]MappedResource, 0, len(selection))
	for _, ref := range selection {
		if _, ok := available[ref.Resource]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrResourceNotInOffering, ref.Resource)
		}
		mapped = append(mapped, MappedResource{
			ServiceOffering: serviceOffering,
			Resource:        ref.Resource,
			Params:          ref.Params,
		})
	}
	return mapped, nil
}
