package stac

import "encoding/json"

// decodeForeign returns every member of the JSON object in data whose key is
// not listed in known. Members that fail to decode are skipped.
func decodeForeign(data []byte, known map[string]bool) (map[string]any, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	extra := make(map[string]any)
	for key, val := range raw {
		if known[key] {
			continue
		}
		var decoded any
		if err := json.Unmarshal(val, &decoded); err != nil {
			continue
		}
		extra[key] = decoded
	}
	return extra, nil
}

// encodeForeign marshals v (which must encode to a JSON object) and merges
// extra into the result. Known members always win over foreign ones.
func encodeForeign(v any, extra map[string]any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return data, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	for key, val := range extra {
		if _, ok := obj[key]; ok {
			continue
		}
		encoded, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		obj[key] = encoded
	}
	return json.Marshal(obj)
}
