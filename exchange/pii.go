package exchange

import (
	"context"
	"fmt"

	"exchangeflow/registry"
)

// CatalogReader fetches catalog descriptors.
type CatalogReader interface {
	GetCatalogData(ctx context.Context, id string) (registry.CatalogData, error)
}

// PIIGate vetoes exchanges whose resources contain PII or whose purpose uses it.
type PIIGate struct {
	catalog CatalogReader
}

func NewPIIGate(catalog CatalogReader) *PIIGate {
	return &PIIGate{catalog: catalog}
}

// Check returns ErrPIIViolation when any mapped resource contains PII, or when
// the purpose's software resources use PII. The purpose's own usePII flag only
// counts when it declares no software resources. Lookups stop at the first hit.
func (g *PIIGate) Check(ctx context.Context, resources []MappedResource, purposeID string) error {
	for _, res := range resources {
		data, err := g.catalog.GetCatalogData(ctx, res.Resource)
		if err != nil {
			return fmt.Errorf("exchange: pii lookup resource: %w", err)
		}
		if data.ContainsPII {
			return fmt.Errorf("%w: resource %s", ErrPIIViolation, res.Resource)
		}
	}

	purpose, err := g.catalog.GetCatalogData(ctx, purposeID)
	if err != nil {
		return fmt.Errorf("exchange: pii lookup purpose: %w", err)
	}

	if len(purpose.SoftwareResources) > 0 {
		for _, sw := range purpose.SoftwareResources {
			data, err := g.catalog.GetCatalogData(ctx, sw)
			if err != nil {
				return fmt.Errorf("exchange: pii lookup software resource: %w", err)
			}
			if data.UsePII {
				return fmt.Errorf("%w: software resource %s", ErrPIIViolation, sw)
			}
		}
		return nil
	}

	if purpose.UsePII {
		return fmt.Errorf("%w: purpose %s", ErrPIIViolation, purposeID)
	}
	return nil
}
