package vannoy

import "time"

// Match is one scored nearest-neighbor hit
type Match struct {
	ID       uint32  `json:"id"`
	Distance float32 `json:"distance"`
}

// SearchResult holds the outcome of one query
type SearchResult struct {
	Results []Match       `json:"results"`
	Took    time.Duration `json:"took"`
}

// IndexStats summarizes the shape of one index's tree forest
type IndexStats struct {
	Trees            int `json:"trees"`
	MaxDepth         int `json:"max_depth"`
	SplitPlaneNodes  int `json:"split_plane_nodes"`
	DegenerateSplits int `json:"degenerate_splits"`
	DescendantsNodes int `json:"descendants_nodes"`
	DescendantItems  int `json:"descendant_items"`
}
