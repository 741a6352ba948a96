package hub

import "testing"

// TestMergePatchLaws checks the RFC 7396 laws quoted in spec section 8.
func TestMergePatchLaws(t *testing.T) {
	x := map[string]interface{}{"a": float64(1), "b": map[string]interface{}{"c": float64(2)}}

	t.Run("EmptyObjectPatchIsIdentity", func(t *testing.T) {
		got := mergePatch(x, map[string]interface{}{})
		gotMap, ok := got.(map[string]interface{})
		if !ok {
			t.Fatalf("expected a map, got %T", got)
		}
		if gotMap["a"] != float64(1) {
			t.Fatalf("unexpected result: %+v", gotMap)
		}
	})

	t.Run("NilPatchReplacesWithNull", func(t *testing.T) {
		got := mergePatch(x, nil)
		if got != nil {
			t.Fatalf("expected nil, got %v", got)
		}
	})

	t.Run("NonObjectPatchReplacesWholesale", func(t *testing.T) {
		got := mergePatch(x, "replacement")
		if got != "replacement" {
			t.Fatalf("expected wholesale replacement, got %v", got)
		}
	})

	t.Run("NullKeyDeletes", func(t *testing.T) {
		got := mergePatch(x, map[string]interface{}{"a": nil})
		gotMap := got.(map[string]interface{})
		if _, ok := gotMap["a"]; ok {
			t.Fatalf("expected key a to be deleted, got %+v", gotMap)
		}
		if _, ok := gotMap["b"]; !ok {
			t.Fatalf("expected unrelated key b to survive, got %+v", gotMap)
		}
	})

	t.Run("NestedObjectsMergeRecursively", func(t *testing.T) {
		got := mergePatch(x, map[string]interface{}{"b": map[string]interface{}{"d": float64(3)}})
		gotMap := got.(map[string]interface{})
		nested := gotMap["b"].(map[string]interface{})
		if nested["c"] != float64(2) {
			t.Fatalf("expected existing nested key to survive, got %+v", nested)
		}
		if nested["d"] != float64(3) {
			t.Fatalf("expected new nested key to be added, got %+v", nested)
		}
	})

	t.Run("NilTargetTreatedAsEmptyObject", func(t *testing.T) {
		got := mergePatch(nil, map[string]interface{}{"a": float64(1)})
		gotMap := got.(map[string]interface{})
		if gotMap["a"] != float64(1) {
			t.Fatalf("unexpected result: %+v", gotMap)
		}
	})
}
