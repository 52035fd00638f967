package parser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Dataset is a catalog entry that may hold fee schedule rows.
type Dataset struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
}

// ResolveDatasets picks, in catalog order, up to limit datasets whose title contains
// one of terms (case-insensitive). limit <= 0 means no limit.
func ResolveDatasets(body []byte, terms []string, limit int) ([]Dataset, error) {
	items, err := decodeCatalog(body)
	if err != nil {
		return nil, err
	}

	var (
		matched []Dataset
		seen    = map[string]struct{}{}
	)
	for _, item := range items {
		if item.Identifier == "" {
			continue
		}
		if _, dup := seen[item.Identifier]; dup {
			continue
		}
		if !titleMatches(item.Title, terms) {
			continue
		}
		seen[item.Identifier] = struct{}{}
		matched = append(matched, item)
		if limit > 0 && len(matched) == limit {
			break
		}
	}
	return matched, nil
}

func decodeCatalog(body []byte) ([]Dataset, error) {
	var items []Dataset
	if err := json.Unmarshal(body, &items); err == nil {
		return items, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	for _, key := range wrapperKeys {
		raw, ok := wrapped[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &items); err == nil {
			return items, nil
		}
	}
	return nil, fmt.Errorf("decode catalog: no dataset list in response")
}

func titleMatches(title string, terms []string) bool {
	title = strings.ToLower(title)
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(title, term) {
			return true
		}
	}
	return false
}
