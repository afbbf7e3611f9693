package exchange

import (
	"context"
	"errors"
	"testing"

	"exchangeflow/registry"
)

func TestNewReplica_Orientation(t *testing.T) {
	d := DataExchange{
		ID:               "dx1",
		ProviderEndpoint: providerURL,
		Resources:        []MappedResource{{ServiceOffering: "so1", Resource: "r1"}},
		PurposeID:        "pu1",
		Contract:         "c1",
		ProviderParams:   registry.Params{{"k": "v"}},
	}

	fromConsumer := NewReplica(d, RoleConsumer, consumerURL)
	if fromConsumer.ConsumerEndpoint != consumerURL || fromConsumer.ProviderEndpoint != "" {
		t.Fatalf("consumer sender must announce itself as consumer: %+v", fromConsumer)
	}
	if fromConsumer.Origin != RoleConsumer || fromConsumer.PurposeID != "pu1" || len(fromConsumer.Resources) != 1 {
		t.Fatalf("replica lost fields: %+v", fromConsumer)
	}

	fromProvider := NewReplica(d, RoleProvider, providerURL)
	if fromProvider.ProviderEndpoint != providerURL || fromProvider.ConsumerEndpoint != "" {
		t.Fatalf("provider sender must announce itself as provider: %+v", fromProvider)
	}
}

func TestAcceptReplica(t *testing.T) {
	f := newFlowFixture()
	svc := f.service(providerURL)

	got, err := svc.AcceptReplica(context.Background(), Replica{
		ConsumerEndpoint: consumerURL,
		Resources:        []MappedResource{{ServiceOffering: "so1", Resource: "r1"}},
		PurposeID:        "pu1",
		Contract:         "c1",
		Origin:           RoleConsumer,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "dx1" || got.Status != StatusPending || got.ConsumerEndpoint != consumerURL {
		t.Fatalf("unexpected replica record: %+v", got)
	}
	if got.ProviderParams == nil {
		t.Fatal("provider params must default to an empty list")
	}
	if len(f.replicator.calls) != 0 {
		t.Fatal("accepting a replica must not replicate back")
	}
}

func TestAcceptReplica_Invalid(t *testing.T) {
	base := Replica{
		ConsumerEndpoint: consumerURL,
		Resources:        []MappedResource{{Resource: "r1"}},
		PurposeID:        "pu1",
		Contract:         "c1",
	}

	both := base
	both.ProviderEndpoint = providerURL
	neither := base
	neither.ConsumerEndpoint = ""
	empty := base
	empty.Resources = nil
	noContract := base
	noContract.Contract = ""
	wrongOrigin := base
	wrongOrigin.Origin = RoleProvider
	unknownOrigin := base
	unknownOrigin.Origin = Role("broker")

	for name, r := range map[string]Replica{
		"both endpoints":                 both,
		"neither endpoint":               neither,
		"no resources":                   empty,
		"no contract":                    noContract,
		"origin disagrees with endpoint": wrongOrigin,
		"unknown origin":                 unknownOrigin,
	} {
		f := newFlowFixture()
		_, err := f.service(providerURL).AcceptReplica(context.Background(), r)
		if !errors.Is(err, ErrInvalidReplica) {
			t.Fatalf("%s: expected ErrInvalidReplica, got %v", name, err)
		}
		if f.repo.count() != 0 {
			t.Fatalf("%s: invalid replica must not be stored", name)
		}
	}
}
