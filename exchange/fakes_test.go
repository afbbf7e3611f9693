package exchange

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"exchangeflow/registry"
)

type fakeRepo struct {
	mu        sync.Mutex
	items     map[string]DataExchange
	createErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{items: make(map[string]DataExchange)}
}

func (f *fakeRepo) Create(_ context.Context, d DataExchange) (DataExchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return DataExchange{}, f.createErr
	}
	if _, ok := f.items[d.ID]; ok {
		return DataExchange{}, fmt.Errorf("duplicate id %s", d.ID)
	}
	f.items[d.ID] = d
	return d, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (DataExchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.items[id]
	if !ok {
		return DataExchange{}, ErrNotFound
	}
	return d, nil
}

func (f *fakeRepo) List(_ context.Context) ([]DataExchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]DataExchange, 0, len(f.items))
	for _, d := range f.items {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) Update(_ context.Context, id string, patch Patch) (DataExchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.items[id]
	if !ok {
		return DataExchange{}, ErrNotFound
	}
	applyPatch(&d, patch)
	f.items[id] = d
	return d, nil
}

func (f *fakeRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

type fakeContracts struct {
	contracts map[string]registry.Contract
}

func (f *fakeContracts) GetContract(_ context.Context, id string) (registry.Contract, error) {
	c, ok := f.contracts[id]
	if !ok {
		return registry.Contract{}, registry.ErrNotFound
	}
	return c, nil
}

type fakeCatalog struct {
	mu    sync.Mutex
	data  map[string]registry.CatalogData
	calls []string
}

func (f *fakeCatalog) GetCatalogData(_ context.Context, id string) (registry.CatalogData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	d, ok := f.data[id]
	if !ok {
		return registry.CatalogData{}, registry.ErrNotFound
	}
	return d, nil
}

func (f *fakeCatalog) called(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == id {
			return true
		}
	}
	return false
}

type fakeParticipants struct {
	descriptions map[string]registry.SelfDescription
}

func (f *fakeParticipants) GetSelfDescription(_ context.Context, url string) (registry.SelfDescription, error) {
	sd, ok := f.descriptions[url]
	if !ok {
		return registry.SelfDescription{}, registry.ErrNotFound
	}
	return sd, nil
}

type replicationCall struct {
	endpoint string
	replica  Replica
}

type fakeReplicator struct {
	mu    sync.Mutex
	err   error
	calls []replicationCall
}

func (f *fakeReplicator) Replicate(_ context.Context, endpoint string, replica Replica) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, replicationCall{endpoint: endpoint, replica: replica})
	return f.err
}

type fakeNotifier struct {
	subject  string
	payloads [][]byte
	err      error
}

func (f *fakeNotifier) Publish(_ context.Context, subject string, payload []byte) error {
	f.subject = subject
	f.payloads = append(f.payloads, payload)
	return f.err
}
