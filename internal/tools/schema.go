package tools

import (
	"encoding/json"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
)

// inline renders schema as standalone JSON, replacing every $ref into the
// registry with the referenced schema. MCP clients do not resolve
// components, so published schemas must be self-contained.
func (r *Registry) inline(schema *huma.Schema) (json.RawMessage, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	doc, err = r.resolveRefs(doc, 0)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func (r *Registry) resolveRefs(node any, depth int) (any, error) {
	if depth > 32 {
		return nil, fmt.Errorf("schema nesting too deep")
	}
	switch v := node.(type) {
	case map[string]any:
		if ref, ok := v["$ref"].(string); ok {
			target := r.schemas.SchemaFromRef(ref)
			if target == nil {
				return nil, fmt.Errorf("unresolved schema ref %s", ref)
			}
			data, err := json.Marshal(target)
			if err != nil {
				return nil, err
			}
			var resolved any
			if err := json.Unmarshal(data, &resolved); err != nil {
				return nil, err
			}
			return r.resolveRefs(resolved, depth+1)
		}
		for k, child := range v {
			out, err := r.resolveRefs(child, depth+1)
			if err != nil {
				return nil, err
			}
			v[k] = out
		}
		return v, nil
	case []any:
		for i, child := range v {
			out, err := r.resolveRefs(child, depth+1)
			if err != nil {
				return nil, err
			}
			v[i] = out
		}
		return v, nil
	default:
		return node, nil
	}
}
