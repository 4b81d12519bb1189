package domain

// Item is a tenant-scoped explorable record. Fields hold the item's
// kind-specific values (strings or string lists).
type Item struct {
	ID      ItemID
	ScopeID ScopeID
	Kind    ItemKind
	Name    string
	Fields  map[string]any

	// ValidationCoverage is a cache of the research-method aggregate.
	ValidationCoverage int
	UpdatedAt          Timestamp
}

// DimensionQuestion is one analytical facet of an item kind.
type DimensionQuestion struct {
	Key      string `json:"key" yaml:"key"`
	Title    string `json:"title" yaml:"title"`
	Icon     string `json:"icon" yaml:"icon"`
	Question string `json:"question" yaml:"question"`
}

type FieldType string

const (
	FieldText FieldType = "text"
	FieldList FieldType = "list"
)

// FieldSpec describes one item field the synthesis may suggest changes for.
type FieldSpec struct {
	Key   string    `json:"key" yaml:"key"`
	Label string    `json:"label" yaml:"label"`
	Type  FieldType `json:"type" yaml:"type"`
}

// ItemRef addresses an item across stores.
type ItemRef struct {
	Kind    ItemKind
	ID      ItemID
	ScopeID ScopeID
}

// Key is a stable string form of the reference, usable as a map or lock key.
func (r ItemRef) Key() string {
	return string(r.Kind) + "/" + string(r.ScopeID) + "/" + string(r.ID)
}
