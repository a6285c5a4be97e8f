package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/TimurManjosov/cclengine/internal/jfn"
	"github.com/TimurManjosov/cclengine/internal/rules"
)

func testConfiguration(country, version string) rules.Configuration {
	return rules.Configuration{
		Identifier:    "CCL-" + country + "-" + version,
		Type:          rules.ConfigurationType,
		Country:       country,
		Version:       version,
		SchemaVersion: "1.0.0",
		Engine:        rules.EngineName,
		EngineVersion: "1.0.0",
		ValidFrom:     "2022-01-01T00:00:00Z",
		ValidTo:       "2030-01-01T00:00:00Z",
		Logic: rules.Logic{JfnDescriptors: []jfn.Descriptor{{
			Name:       "greet",
			Definition: jfn.Definition{Logic: map[string]any{"cat": []any{"hello ", country}}},
		}}},
	}
}

func TestMemoryStore_CRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	if err := m.UpsertConfiguration(ctx, testConfiguration("DE", "1.0.0")); err != nil {
		t.Fatalf("UpsertConfiguration: %v", err)
	}
	got, err := m.GetConfiguration(ctx, "de", "1.0")
	if err != nil {
		t.Fatalf("GetConfiguration: %v", err)
	}
	if got.Identifier != "CCL-DE-1.0.0" {
		t.Errorf("Identifier = %q", got.Identifier)
	}

	if err := m.DeleteConfiguration(ctx, "DE", "1.0.0"); err != nil {
		t.Fatalf("DeleteConfiguration: %v", err)
	}
	if _, err := m.GetConfiguration(ctx, "DE", "1.0.0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	// Deleting again is not an error.
	if err := m.DeleteConfiguration(ctx, "DE", "1.0.0"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestMemoryStore_RejectsInvalid(t *testing.T) {
	c := testConfiguration("DE", "1.0.0")
	c.Type = "Something"
	err := NewMemoryStore().UpsertConfiguration(context.Background(), c)
	if !errors.Is(err, rules.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestMemoryStore_ListOrdering(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	for _, c := range []rules.Configuration{
		testConfiguration("DE", "1.10.0"),
		testConfiguration("AT", "1.0.0"),
		testConfiguration("DE", "1.2.0"),
	} {
		if err := m.UpsertConfiguration(ctx, c); err != nil {
			t.Fatalf("UpsertConfiguration: %v", err)
		}
	}
	list, err := m.ListConfigurations(ctx)
	if err != nil {
		t.Fatalf("ListConfigurations: %v", err)
	}
	want := []string{"AT@1.0.0", "DE@1.2.0", "DE@1.10.0"}
	if len(list) != len(want) {
		t.Fatalf("len = %d, want %d", len(list), len(want))
	}
	for i, c := range list {
		if c.Key() != want[i] {
			t.Errorf("list[%d] = %s, want %s", i, c.Key(), want[i])
		}
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.UpsertConfiguration(ctx, testConfiguration("DE", "1.0.0"))
			_, _ = m.ListConfigurations(ctx)
		}()
	}
	wg.Wait()

	list, _ := m.ListConfigurations(ctx)
	if len(list) != 1 {
		t.Errorf("expected 1 configuration, got %d", len(list))
	}
}

func TestBundledStore(t *testing.T) {
	m, err := NewBundledStore()
	if err != nil {
		t.Fatalf("NewBundledStore: %v", err)
	}
	list, err := m.ListConfigurations(context.Background())
	if err != nil {
		t.Fatalf("ListConfigurations: %v", err)
	}
	if len(list) == 0 {
		t.Fatal("expected bundled configurations")
	}
	if _, ok := list[0].Descriptor("getDccWalletInfo"); !ok {
		t.Error("bundled configuration lacks getDccWalletInfo")
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		country, version, want string
	}{
		{"de", "1.0.0", "DE@1.0.0"},
		{"DE", "1", "DE@1.0.0"},
		{" at ", "2.1", "AT@2.1.0"},
		{"DE", "latest", "DE@latest"},
	}
	for _, tt := range tests {
		if got := Key(tt.country, tt.version); got != tt.want {
			t.Errorf("Key(%q, %q) = %q, want %q", tt.country, tt.version, got, tt.want)
		}
	}
}
