package scraper

import (
	"encoding/json"
	"fmt"
)

// pageData is the envelope of a static-site page-data.json document:
// result.data.<collection>.edges[].node.
type pageData[T any] struct {
	Result struct {
		Data map[string]struct {
			Edges []struct {
				Node T `json:"node"`
			} `json:"edges"`
		} `json:"data"`
	} `json:"result"`
}

func decodeEdges[T any](body []byte, collection string) ([]T, error) {
	var doc pageData[T]
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal page data: %w", err)
	}
	conn, ok := doc.Result.Data[collection]
	if !ok {
		return nil, fmt.Errorf("page data has no %q collection", collection)
	}
	out := make([]T, 0, len(conn.Edges))
	for _, e := range conn.Edges {
		out = append(out, e.Node)
	}
	return out, nil
}
