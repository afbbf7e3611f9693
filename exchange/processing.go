package exchange

import (
	"fmt"

	"exchangeflow/registry"
)

// VerifyDataProcessing returns the contract's data processing whose catalog id matches id.
func VerifyDataProcessing(id string, processings []registry.DataProcessing) (registry.DataProcessing, error) {
	if len(processings) == 0 {
		return registry.DataProcessing{}, ErrEmptyDataProcessingList
	}
	for _, dp := range processings {
		if dp.CatalogID == id {
			return dp, nil
		}
	}
	return registry.DataProcessing{}, fmt.Errorf("%w: %s", ErrDataProcessingNotFound, id)
}
