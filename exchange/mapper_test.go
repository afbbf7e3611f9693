package exchange

import (
	"errors"
	"reflect"
	"testing"

	"exchangeflow/registry"
)

func TestMapResources_EmptySelectionMapsEveryDeclaredResource(t *testing.T) {
	declared := []registry.ResourceRef{
		{Resource: "r1"},
		{Resource: "r2", Params: registry.Params{{"limit": 5}}},
	}

	got, err := MapResources(nil, declared, "so1")
	if err != nil {
		t.Fatalf("map: unexpected error: %v", err)
	}

	want := []MappedResource{
		{ServiceOffering: "so1", Resource: "r1"},
		{ServiceOffering: "so1", Resource: "r2", Params: registry.Params{{"limit": 5}}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v got %+v", want, got)
	}
}

func TestMapResources_SelectionKeepsOrderAndCallerParams(t *testing.T) {
	declared := []registry.ResourceRef{{Resource: "r1"}, {Resource: "r2"}, {Resource: "r3"}}
	selection := []registry.ResourceRef{
		{Resource: "r3"},
		{Resource: "r1", Params: registry.Params{{"q": "caller"}}},
	}

	got, err := MapResources(selection, declared, "so1")
	if err != nil {
		t.Fatalf("map: unexpected error: %v", err)
	}
	if len(got) != len(selection) {
		t.Fatalf("expected %d mapped resources got %d", len(selection), len(got))
	}
	if got[0].Resource != "r3" || got[0].Params != nil {
		t.Fatalf("bare identifier must carry no params: %+v", got[0])
	}
	if got[1].Resource != "r1" || !reflect.DeepEqual(got[1].Params, registry.Params{{"q": "caller"}}) {
		t.Fatalf("object selection must keep caller params: %+v", got[1])
	}
}

func TestMapResources_RejectsUndeclaredResource(t *testing.T) {
	declared := []registry.ResourceRef{{Resource: "r1"}}

	cases := map[string][]registry.ResourceRef{
		"bare":   {{Resource: "r1"}, {Resource: "r9"}},
		"object": {{Resource: "r9", Params: registry.Params{{"k": "v"}}}},
	}
	for name, selection := range cases {
		got, err := MapResources(selection, declared, "so1")
		if !errors.Is(err, ErrResourceNotInOffering) {
			t.Fatalf("%s: expected ErrResourceNotInOffering, got %v", name, err)
		}
		if got != nil {
			t.Fatalf("%s: expected no partial result, got %+v", name, got)
		}
	}
}
