// Package knowledge adapts an external MCP memory server as the
// cross-session knowledge graph. Entities and relations live entirely
// on the server side; this package only produces and queries them by
// naming convention, best-effort.
package knowledge

import "strings"

// Entity naming prefixes. Checkpoints and blockers are the only kinds
// this subsystem writes, so prefix search is how they come back out.
const (
	CheckpointPrefix = "checkpoint:"
	BlockerPrefix    = "blocker:"
)

// Relation kinds produced by checkpoint writes.
const (
	RelationCreatedAt  = "created-at"
	RelationBlocks     = "blocks"
	RelationResolvedBy = "resolved-by"
)

// Entity is one node in the graph, in the memory server's wire shape.
type Entity struct {
	Name         string   `json:"name"`
	EntityType   string   `json:"entityType"`
	Observations []string `json:"observations,omitempty"`
}

// Relation links two entities by name.
type Relation struct {
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relationType"`
}

// SearchResult is the graph slice returned by a node search.
type SearchResult struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}

// CheckpointName returns the graph name for a checkpoint label.
func CheckpointName(label string) string {
	return CheckpointPrefix + label
}

// BlockerName returns the graph name for a blocker description.
func BlockerName(description string) string {
	return BlockerPrefix + strings.TrimSpace(description)
}
