package exchange

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"exchangeflow/registry"
)

const (
	providerSD  = "https://catalog.example/participants/p"
	consumerSD  = "https://catalog.example/participants/q"
	providerURL = "https://p.example/"
	consumerURL = "https://q.example/"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type flowFixture struct {
	contracts    *fakeContracts
	catalog      *fakeCatalog
	participants *fakeParticipants
	replicator   *fakeReplicator
	repo         *fakeRepo
}

func newFlowFixture() *flowFixture {
	return &flowFixture{
		contracts: &fakeContracts{contracts: map[string]registry.Contract{
			"c1": {
				DataProvider:    providerSD,
				DataConsumer:    consumerSD,
				ServiceOffering: "so1",
				Purpose:         []registry.ContractPurpose{{Purpose: "pu1"}},
				DataProcessings: []registry.DataProcessing{{CatalogID: "dp1"}},
			},
			"c2": {
				ServiceOfferings: []registry.ContractOffering{
					{ServiceOffering: "so-res", Participant: providerSD},
					{ServiceOffering: "pu-eco", Participant: consumerSD},
				},
			},
		}},
		catalog: &fakeCatalog{data: map[string]registry.CatalogData{
			"so1":    {DataResources: []registry.ResourceRef{{Resource: "r1"}, {Resource: "r2"}}},
			"so-res": {DataResources: []registry.ResourceRef{{Resource: "r1"}}},
			"r1":     {},
			"r2":     {},
			"pu1":    {},
			"pu-eco": {},
		}},
		participants: &fakeParticipants{descriptions: map[string]registry.SelfDescription{
			providerSD: {DataspaceEndpoint: providerURL},
			consumerSD: {DataspaceEndpoint: consumerURL},
		}},
		replicator: &fakeReplicator{},
		repo:       newFakeRepo(),
	}
}

func (f *flowFixture) service(local string) *FlowService {
	n := 0
	return NewFlowService(FlowDeps{
		Contracts:    f.contracts,
		Catalog:      f.catalog,
		Participants: f.participants,
		Replicator:   f.replicator,
		Repo:         f.repo,
	}, local, nil).
		WithIDGenerator(func() string { n++; return fmt.Sprintf("dx%d", n) }).
		WithClock(func() time.Time { return fixedNow })
}

func TestTriggerBilateralFlow_ConsumerSide(t *testing.T) {
	f := newFlowFixture()
	svc := f.service(consumerURL)

	res, err := svc.TriggerBilateralFlow(context.Background(), BilateralRequest{Contract: "c1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := res.Exchange
	if got.ID != "dx1" || got.Status != StatusPending {
		t.Fatalf("unexpected record identity: %+v", got)
	}
	if got.ProviderEndpoint != providerURL || got.ConsumerEndpoint != "" {
		t.Fatalf("expected provider counterpart only, got %q / %q", got.ProviderEndpoint, got.ConsumerEndpoint)
	}
	if len(got.Resources) != 2 || got.Resources[0].Resource != "r1" || got.Resources[1].Resource != "r2" {
		t.Fatalf("expected all offering resources, got %+v", got.Resources)
	}
	if got.Resources[0].ServiceOffering != "so1" {
		t.Fatalf("expected resources tied to so1, got %q", got.Resources[0].ServiceOffering)
	}
	if got.PurposeID != "pu1" || got.Contract != "c1" {
		t.Fatalf("unexpected purpose/contract: %q %q", got.PurposeID, got.Contract)
	}
	if !got.CreatedAt.Equal(fixedNow) || !got.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("expected timestamps from clock, got %s %s", got.CreatedAt, got.UpdatedAt)
	}
	if res.ProviderEndpoint != providerURL || !res.Replicated {
		t.Fatalf("unexpected result: %+v", res)
	}
	if f.repo.count() != 1 {
		t.Fatalf("expected one stored record, got %d", f.repo.count())
	}

	if len(f.replicator.calls) != 1 {
		t.Fatalf("expected one replication, got %d", len(f.replicator.calls))
	}
	call := f.replicator.calls[0]
	if call.endpoint != providerURL {
		t.Fatalf("expected replication to provider, got %s", call.endpoint)
	}
	if call.replica.ConsumerEndpoint != consumerURL || call.replica.ProviderEndpoint != "" || call.replica.Origin != RoleConsumer {
		t.Fatalf("unexpected replica orientation: %+v", call.replica)
	}
}

func TestTriggerBilateralFlow_ProviderSide(t *testing.T) {
	f := newFlowFixture()
	svc := f.service(providerURL)

	res, err := svc.TriggerBilateralFlow(context.Background(), BilateralRequest{
		Contract:       "c1",
		Resources:      []registry.ResourceRef{{Resource: "r2", Params: registry.Params{{"limit": 10}}}},
		ProviderParams: registry.Params{{"token": "abc"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := res.Exchange
	if got.ConsumerEndpoint != consumerURL || got.ProviderEndpoint != "" {
		t.Fatalf("expected consumer counterpart only, got %q / %q", got.ProviderEndpoint, got.ConsumerEndpoint)
	}
	if len(got.Resources) != 1 || got.Resources[0].Resource != "r2" || got.Resources[0].Params[0]["limit"] != 10 {
		t.Fatalf("expected selected resource with params, got %+v", got.Resources)
	}
	if len(got.ProviderParams) != 1 || got.ProviderParams[0]["token"] != "abc" {
		t.Fatalf("expected provider params stored, got %+v", got.ProviderParams)
	}

	call := f.replicator.calls[0]
	if call.endpoint != consumerURL || call.replica.ProviderEndpoint != providerURL || call.replica.Origin != RoleProvider {
		t.Fatalf("unexpected replication: %+v", call)
	}
}

func TestTriggerBilateralFlow_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(f *flowFixture)
		req     BilateralRequest
		wantErr error
	}{
		{
			name: "provider without endpoint",
			mutate: func(f *flowFixture) {
				f.participants.descriptions[providerSD] = registry.SelfDescription{}
			},
			req:     BilateralRequest{Contract: "c1"},
			wantErr: ErrMissingProviderEndpoint,
		},
		{
			name:    "resource outside offering",
			req:     BilateralRequest{Contract: "c1", Resources: []registry.ResourceRef{{Resource: "r9"}}},
			wantErr: ErrResourceNotInOffering,
		},
		{
			name: "pii resource",
			mutate: func(f *flowFixture) {
				f.catalog.data["r2"] = registry.CatalogData{ContainsPII: true}
			},
			req:     BilateralRequest{Contract: "c1"},
			wantErr: ErrPIIViolation,
		},
		{
			name:    "unknown data processing",
			req:     BilateralRequest{Contract: "c1", DataProcessingID: "dp9"},
			wantErr: ErrDataProcessingNotFound,
		},
		{
			name: "contract without purpose",
			mutate: func(f *flowFixture) {
				c := f.contracts.contracts["c1"]
				c.Purpose = nil
				f.contracts.contracts["c1"] = c
			},
			req:     BilateralRequest{Contract: "c1"},
			wantErr: ErrInvalidPurpose,
		},
		{
			name: "offering declares no resources",
			mutate: func(f *flowFixture) {
				f.catalog.data["so1"] = registry.CatalogData{}
			},
			req:     BilateralRequest{Contract: "c1"},
			wantErr: ErrNoResources,
		},
		{
			name:    "unknown contract",
			req:     BilateralRequest{Contract: "c404"},
			wantErr: registry.ErrNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFlowFixture()
			if tc.mutate != nil {
				tc.mutate(f)
			}
			_, err := f.service(consumerURL).TriggerBilateralFlow(context.Background(), tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if f.repo.count() != 0 {
				t.Fatalf("rejected flow must not create a record")
			}
			if len(f.replicator.calls) != 0 {
				t.Fatalf("rejected flow must not replicate")
			}
		})
	}
}

func TestTriggerBilateralFlow_DataProcessingAttached(t *testing.T) {
	f := newFlowFixture()

	res, err := f.service(consumerURL).TriggerBilateralFlow(context.Background(), BilateralRequest{
		Contract:         "c1",
		DataProcessingID: "dp1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Exchange.DataProcessing.CatalogID != "dp1" {
		t.Fatalf("expected data processing dp1, got %+v", res.Exchange.DataProcessing)
	}
}

func TestTriggerBilateralFlow_ReplicationFailureKeepsRecord(t *testing.T) {
	f := newFlowFixture()
	f.replicator.err = errors.New("connection refused")

	res, err := f.service(consumerURL).TriggerBilateralFlow(context.Background(), BilateralRequest{Contract: "c1"})
	if err != nil {
		t.Fatalf("replication failure must not fail the flow: %v", err)
	}
	if res.Replicated {
		t.Fatal("expected Replicated=false")
	}
	stored, err := f.repo.GetByID(context.Background(), res.Exchange.ID)
	if err != nil {
		t.Fatalf("local record must survive: %v", err)
	}
	if stored.Status != StatusPending {
		t.Fatalf("expected PENDING, got %s", stored.Status)
	}
}

func TestTriggerBilateralFlow_StoreFailure(t *testing.T) {
	f := newFlowFixture()
	f.repo.createErr = errors.New("disk full")

	if _, err := f.service(consumerURL).TriggerBilateralFlow(context.Background(), BilateralRequest{Contract: "c1"}); err == nil {
		t.Fatal("expected store error")
	}
	if len(f.replicator.calls) != 0 {
		t.Fatal("nothing must be replicated when the local commit fails")
	}
}

func TestTriggerEcosystemFlow_ConsumerSide(t *testing.T) {
	f := newFlowFixture()

	res, err := f.service(consumerURL).TriggerEcosystemFlow(context.Background(), EcosystemRequest{
		Contract:   "c2",
		ResourceID: "so-res",
		PurposeID:  "pu-eco",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := res.Exchange
	if got.ProviderEndpoint != providerURL || got.ConsumerEndpoint != "" {
		t.Fatalf("expected provider counterpart, got %q / %q", got.ProviderEndpoint, got.ConsumerEndpoint)
	}
	if got.PurposeID != "pu-eco" || len(got.Resources) != 1 || got.Resources[0].ServiceOffering != "so-res" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if f.replicator.calls[0].endpoint != providerURL {
		t.Fatalf("expected replication to provider, got %s", f.replicator.calls[0].endpoint)
	}
}

func TestTriggerEcosystemFlow_ProviderSide(t *testing.T) {
	f := newFlowFixture()

	res, err := f.service(providerURL).TriggerEcosystemFlow(context.Background(), EcosystemRequest{
		Contract:   "c2",
		ResourceID: "so-res",
		PurposeID:  "pu-eco",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Exchange.ConsumerEndpoint != consumerURL || res.Exchange.ProviderEndpoint != "" {
		t.Fatalf("expected consumer counterpart, got %+v", res.Exchange)
	}
}

func TestTriggerEcosystemFlow_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		local   string
		mutate  func(f *flowFixture)
		req     EcosystemRequest
		wantErr error
	}{
		{
			name:    "missing purpose id",
			local:   consumerURL,
			req:     EcosystemRequest{Contract: "c2", ResourceID: "so-res"},
			wantErr: ErrMissingParameters,
		},
		{
			name:    "missing resource id",
			local:   consumerURL,
			req:     EcosystemRequest{Contract: "c2", PurposeID: "pu-eco"},
			wantErr: ErrMissingParameters,
		},
		{
			name:    "purpose not in contract",
			local:   consumerURL,
			req:     EcosystemRequest{Contract: "c2", ResourceID: "so-res", PurposeID: "pu-x"},
			wantErr: ErrInvalidPurpose,
		},
		{
			name:    "resource not in contract",
			local:   consumerURL,
			req:     EcosystemRequest{Contract: "c2", ResourceID: "so-x", PurposeID: "pu-eco"},
			wantErr: ErrInvalidResource,
		},
		{
			name:    "empty data processing list",
			local:   consumerURL,
			req:     EcosystemRequest{Contract: "c2", ResourceID: "so-res", PurposeID: "pu-eco", DataProcessingID: "dp1"},
			wantErr: ErrEmptyDataProcessingList,
		},
		{
			name:    "local endpoint matches nobody",
			local:   "https://stranger.example/",
			req:     EcosystemRequest{Contract: "c2", ResourceID: "so-res", PurposeID: "pu-eco"},
			wantErr: ErrRoleResolutionFailed,
		},
		{
			name:  "offering declares no resources",
			local: consumerURL,
			mutate: func(f *flowFixture) {
				f.catalog.data["so-res"] = registry.CatalogData{}
			},
			req:     EcosystemRequest{Contract: "c2", ResourceID: "so-res", PurposeID: "pu-eco"},
			wantErr: ErrNoResources,
		},
		{
			name:  "purpose uses pii",
			local: consumerURL,
			mutate: func(f *flowFixture) {
				f.catalog.data["pu-eco"] = registry.CatalogData{UsePII: true}
			},
			req:     EcosystemRequest{Contract: "c2", ResourceID: "so-res", PurposeID: "pu-eco"},
			wantErr: ErrPIIViolation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFlowFixture()
			if tc.mutate != nil {
				tc.mutate(f)
			}
			_, err := f.service(tc.local).TriggerEcosystemFlow(context.Background(), tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if f.repo.count() != 0 {
				t.Fatalf("rejected flow must not create a record")
			}
		})
	}
}
