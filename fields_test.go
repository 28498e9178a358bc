package loreline

import (
	"reflect"
	"testing"
)

func TestMapFieldsPreservesDeclarationOrder(t *testing.T) {
	f := newMapFields()
	f.Set("c", IntValue(3))
	f.Set("a", IntValue(1))
	f.Set("b", IntValue(2))

	want := []string{"c", "a", "b"}
	if got := f.FieldNames(); !reflect.DeepEqual(got, want) {
		t.Fatalf("FieldNames() = %v, want %v", got, want)
	}

	// Re-setting an existing key must not change its position.
	f.Set("a", IntValue(10))
	if got := f.FieldNames(); !reflect.DeepEqual(got, want) {
		t.Fatalf("FieldNames() after overwrite = %v, want unchanged order %v", got, want)
	}
	v, ok := f.Get("a")
	if !ok || v.IntVal != 10 {
		t.Fatalf("Get(a) = %v, %v; want 10, true", v, ok)
	}
}

func TestMapFieldsExistsAndRemove(t *testing.T) {
	f := newMapFields()
	f.Set("gold", IntValue(5))
	if !f.Exists("gold") {
		t.Fatalf("Exists(gold) = false, want true")
	}
	if f.Exists("silver") {
		t.Fatalf("Exists(silver) = true, want false")
	}
	if !f.Remove("gold") {
		t.Fatalf("Remove(gold) = false, want true")
	}
	if f.Exists("gold") {
		t.Fatalf("gold should no longer exist after Remove")
	}
	if f.Remove("gold") {
		t.Fatalf("Remove on an already-removed key should return false")
	}
	if len(f.FieldNames()) != 0 {
		t.Fatalf("FieldNames() after removing the only key = %v, want empty", f.FieldNames())
	}
}

func TestMapFieldsRemoveMiddlePreservesOrderOfRemainder(t *testing.T) {
	f := newMapFields()
	f.Set("a", IntValue(1))
	f.Set("b", IntValue(2))
	f.Set("c", IntValue(3))
	f.Remove("b")
	want := []string{"a", "c"}
	if got := f.FieldNames(); !reflect.DeepEqual(got, want) {
		t.Fatalf("FieldNames() after removing middle key = %v, want %v", got, want)
	}
}

func TestMapFieldsGetMissingKey(t *testing.T) {
	f := newMapFields()
	v, ok := f.Get("nope")
	if ok {
		t.Fatalf("Get on a missing key should report ok=false, got %v", v)
	}
}

func TestMapFieldsOnCreateIsANoOp(t *testing.T) {
	f := newMapFields()
	f.OnCreate(nil) // must not panic
}
