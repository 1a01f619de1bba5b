package registry

import (
	"fmt"
	"testing"
)

type entry struct {
	Name        string
	Description string
}

func TestBaseRegistry_Register(t *testing.T) {
	reg := NewBaseRegistry[entry]()

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid entry", "create_ticket", false},
		{"empty name", "", true},
		{"duplicate name", "create_ticket", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Register(tt.key, entry{Name: tt.key})
			if (err != nil) != tt.wantErr {
				t.Errorf("Register(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestBaseRegistry_SetReplaces(t *testing.T) {
	reg := NewBaseRegistry[entry]()
	reg.Set("extract", entry{Name: "extract", Description: "v1"})
	reg.Set("extract", entry{Name: "extract", Description: "v2"})

	got, ok := reg.Get("extract")
	if !ok {
		t.Fatal("Get() after Set returned ok=false")
	}
	if got.Description != "v2" {
		t.Errorf("Set() did not replace: got %q", got.Description)
	}
	if reg.Count() != 1 {
		t.Errorf("Count() = %d, want 1", reg.Count())
	}
}

func TestBaseRegistry_Get(t *testing.T) {
	reg := NewBaseRegistry[entry]()
	if err := reg.Register("get_current_time", entry{Name: "get_current_time"}); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	if got, ok := reg.Get("get_current_time"); !ok || got.Name != "get_current_time" {
		t.Errorf("Get() = (%v, %v), want existing entry", got, ok)
	}
	if _, ok := reg.Get("missing"); ok {
		t.Error("Get() ok = true for unregistered name")
	}
}

func TestBaseRegistry_ListAndNamesSorted(t *testing.T) {
	reg := NewBaseRegistry[entry]()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := reg.Register(name, entry{Name: name}); err != nil {
			t.Fatalf("Register(%q) failed: %v", name, err)
		}
	}

	wantNames := []string{"alpha", "mid", "zeta"}
	names := reg.Names()
	if len(names) != len(wantNames) {
		t.Fatalf("Names() length = %d, want %d", len(names), len(wantNames))
	}
	for i, want := range wantNames {
		if names[i] != want {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want)
		}
	}

	items := reg.List()
	for i, want := range wantNames {
		if items[i].Name != want {
			t.Errorf("List()[%d].Name = %q, want %q", i, items[i].Name, want)
		}
	}
}

func TestBaseRegistry_Remove(t *testing.T) {
	reg := NewBaseRegistry[entry]()
	if err := reg.Register("doomed", entry{Name: "doomed"}); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	if err := reg.Remove("doomed"); err != nil {
		t.Errorf("Remove() error = %v", err)
	}
	if _, ok := reg.Get("doomed"); ok {
		t.Error("entry still present after Remove()")
	}
	if err := reg.Remove("doomed"); err == nil {
		t.Error("Remove() of missing entry should fail")
	}
}

func TestBaseRegistry_Clear(t *testing.T) {
	reg := NewBaseRegistry[entry]()
	for i := 0; i < 3; i++ {
		_ = reg.Register(fmt.Sprintf("e%d", i), entry{})
	}

	reg.Clear()
	if reg.Count() != 0 {
		t.Errorf("Count() after Clear = %d, want 0", reg.Count())
	}
}

func TestBaseRegistry_Concurrency(t *testing.T) {
	reg := NewBaseRegistry[entry]()
	done := make(chan bool, 2)

	go func() {
		defer func() { done <- true }()
		for i := 0; i < 100; i++ {
			_ = reg.Register(fmt.Sprintf("concurrent-%d", i), entry{})
		}
	}()

	go func() {
		defer func() { done <- true }()
		for i := 0; i < 100; i++ {
			reg.Get(fmt.Sprintf("concurrent-%d", i))
			reg.Count()
			reg.Names()
		}
	}()

	<-done
	<-done

	if count := reg.Count(); count != 100 {
		t.Errorf("Count() after concurrent registration = %d, want 100", count)
	}
}
