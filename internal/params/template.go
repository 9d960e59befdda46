package params

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ParseTemplate extracts the Parameters block from a JSON template body.
// encoding/json does not preserve object key order, so parameters are
// sorted by key to keep resolution order deterministic.
func ParseTemplate(body []byte) (Template, error) {
	var doc struct {
		Parameters map[string]struct {
			Default any `json:"Default"`
		} `json:"Parameters"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return Template{}, fmt.Errorf("parse template: %w", err)
	}

	keys := make([]string, 0, len(doc.Parameters))
	for key := range doc.Parameters {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	tmpl := Template{Parameters: make([]Definition, 0, len(keys))}
	for _, key := range keys {
		tmpl.Parameters = append(tmpl.Parameters, Definition{
			Key:     key,
			Default: doc.Parameters[key].Default,
		})
	}
	return tmpl, nil
}
