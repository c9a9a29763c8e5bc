package registry

import (
	"fmt"
	"testing"
)

// testItem is a simple struct for testing
type testItem struct {
	ID   string
	Name string
}

func TestBaseRegistry_Register(t *testing.T) {
	registry := NewBaseRegistry[testItem]()

	tests := []struct {
		name    string
		item    testItem
		wantErr bool
	}{
		{
			name: "register valid item",
			item: testItem{
				ID:   "test-1",
				Name: "Test Item 1",
			},
			wantErr: false,
		},
		{
			name: "register item with empty name",
			item: testItem{
				ID:   "",
				Name: "Test Item",
			},
			wantErr: true,
		},
		{
			name: "register duplicate item",
			item: testItem{
				ID:   "test-1", // Same ID as first test
				Name: "Test Item 2",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := registry.Register(tt.item.ID, tt.item)
			if (err != nil) != tt.wantErr {
				t.Errorf("BaseRegistry.Register() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBaseRegistry_Get(t *testing.T) {
	registry := NewBaseRegistry[testItem]()

	item := testItem{ID: "test-1", Name: "Test Item"}
	if err := registry.Register(item.ID, item); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, exists := registry.Get("test-1")
	if !exists {
		t.Fatal("Get() item not found")
	}
	if got.Name != "Test Item" {
		t.Errorf("Get() = %v, want %v", got.Name, "Test Item")
	}

	if _, exists := registry.Get("missing"); exists {
		t.Error("Get() found item that was never registered")
	}
}

func TestBaseRegistry_Names(t *testing.T) {
	registry := NewBaseRegistry[testItem]()

	for _, id := range []string{"charlie", "alpha", "bravo"} {
		if err := registry.Register(id, testItem{ID: id}); err != nil {
			t.Fatalf("Register(%s) error = %v", id, err)
		}
	}

	names := registry.Names()
	want := []string{"alpha", "bravo", "charlie"}
	if len(names) != len(want) {
		t.Fatalf("Names() returned %d names, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestBaseRegistry_Remove(t *testing.T) {
	registry := NewBaseRegistry[testItem]()

	if err := registry.Register("test-1", testItem{ID: "test-1"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := registry.Remove("test-1"); err != nil {
		t.Errorf("Remove() error = %v", err)
	}
	if registry.Count() != 0 {
		t.Errorf("Count() = %d after remove, want 0", registry.Count())
	}

	if err := registry.Remove("test-1"); err == nil {
		t.Error("Remove() expected error for missing item")
	}
}

func TestBaseRegistry_Concurrency(t *testing.T) {
	registry := NewBaseRegistry[testItem]()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			id := fmt.Sprintf("item-%d", n)
			_ = registry.Register(id, testItem{ID: id})
			_, _ = registry.Get(id)
			_ = registry.List()
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	if registry.Count() != 10 {
		t.Errorf("Count() = %d, want 10", registry.Count())
	}
}
