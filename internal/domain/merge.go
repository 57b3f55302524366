package domain

import (
	"dario.cat/mergo"
)

// MergeData applies a partial update to a node's durable data without
// losing unrelated fields. Top-level keys in the patch always win, so a
// patch can clear a value (e.g. jobId -> ""); nested maps are merged
// recursively.
func MergeData(current, patch map[string]interface{}) (map[string]interface{}, error) {
	merged := make(map[string]interface{}, len(current)+len(patch))
	for k, v := range current {
		merged[k] = v
	}

	for k, v := range patch {
		cur, ok := merged[k]
		if !ok {
			merged[k] = v
			continue
		}

		curMap, curIsMap := cur.(map[string]interface{})
		patchMap, patchIsMap := v.(map[string]interface{})
		if !curIsMap || !patchIsMap {
			merged[k] = v
			continue
		}

		nested := make(map[string]interface{}, len(curMap))
		for nk, nv := range curMap {
			nested[nk] = nv
		}
		if err := mergo.Merge(&nested, patchMap, mergo.WithOverride); err != nil {
			return nil, err
		}
		merged[k] = nested
	}

	return merged, nil
}
