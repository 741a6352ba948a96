package hub

// mergePatch applies patch to target following RFC 7396 JSON Merge Patch:
// a non-object patch replaces the target wholesale; an object patch is
// merged key by key, recursively, with a null value deleting the key.
//
//	mergePatch(x, map[string]interface{}{})   == x
//	mergePatch(x, nil)                        == nil
//	mergePatch(x, non-object)                 == non-object
func mergePatch(target map[string]interface{}, patch interface{}) interface{} {
	patchObj, ok := patch.(map[string]interface{})
	if !ok {
		return patch
	}

	if target == nil {
		target = map[string]interface{}{}
	}
	result := make(map[string]interface{}, len(target))
	for k, v := range target {
		result[k] = v
	}

	for k, v := range patchObj {
		if v == nil {
			delete(result, k)
			continue
		}
		var nested map[string]interface{}
		if existing, ok := result[k].(map[string]interface{}); ok {
			nested = existing
		}
		result[k] = mergePatch(nested, v)
	}
	return result
}
