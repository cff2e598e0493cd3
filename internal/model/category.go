package model

// Partition is one owner's slice of both collections. The record store
// hands it to a mutation callback and persists whatever the callback leaves
// behind, categories and items together.
type Partition struct {
	OwnerRef   string
	Categories []string
	Items      []Item
}

// CategoryPartition is one entry of the "categories" collection in its
// flat-file form.
type CategoryPartition struct {
	OwnerRef   string   `json:"ownerRef"`
	Categories []string `json:"categories"`
}

// ItemPartition is one entry of the "items" collection in its flat-file
// form.
type ItemPartition struct {
	OwnerRef string `json:"ownerRef"`
	Items    []Item `json:"items"`
}
