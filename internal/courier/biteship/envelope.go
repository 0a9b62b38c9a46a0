package biteship

import (
	"encoding/json"
	"strconv"
	"strings"
)

// envelope reads fields from a Biteship response that may arrive either flat
// ({id, courier:{...}}) or wrapped ({data:{id, courier:{...}}}).
type envelope struct {
	roots []map[string]any
}

func parseEnvelope(b []byte) (envelope, error) {
	var root map[string]any
	if err := json.Unmarshal(b, &root); err != nil {
		return envelope{}, err
	}
	e := envelope{roots: []map[string]any{root}}
	if data, ok := root["data"].(map[string]any); ok {
		e.roots = append(e.roots, data)
	}
	return e, nil
}

// str returns the first non-empty value among the dotted paths, trying every
// path on the flat shape before the wrapped one.
func (e envelope) str(paths ...string) string {
	for _, root := range e.roots {
		for _, p := range paths {
			if v := lookup(root, p); v != "" {
				return v
			}
		}
	}
	return ""
}

func lookup(m map[string]any, path string) string {
	var cur any = m
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = obj[key]
	}
	switch v := cur.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}
