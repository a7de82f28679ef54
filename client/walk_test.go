package client

import "testing"

func TestWalkObjectsFindsNestedAndListed(t *testing.T) {
	doc := map[string]interface{}{
		"_type": "root",
		"id":    "1",
		"child": map[string]interface{}{
			"_type": "user",
			"id":    "u1",
		},
		"items": []interface{}{
			map[string]interface{}{"_type": "user", "id": "u2"},
			"not an object",
			map[string]interface{}{"no_type": true},
		},
	}

	var found []string
	walkObjects(doc, func(obj map[string]interface{}) {
		found = append(found, obj["id"].(string))
	})

	if len(found) != 3 {
		t.Fatalf("expected 3 typed objects, found %d: %v", len(found), found)
	}
}

func TestWalkObjectsSkipsUntypedMaps(t *testing.T) {
	doc := map[string]interface{}{"plain": map[string]interface{}{"a": 1}}
	var count int
	walkObjects(doc, func(obj map[string]interface{}) { count++ })
	if count != 0 {
		t.Fatalf("expected no visits for untyped maps, got %d", count)
	}
}
