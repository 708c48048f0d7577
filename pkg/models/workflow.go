// Package models defines the core domain models for conversational workflow execution.
package models

import (
	"fmt"
	"time"
)

// Workflow is a tenant-owned directed graph of message nodes. A published workflow
// definition is immutable; the engine only ever reads it.
type Workflow struct {
	ID          string    `json:"id"            validate:"required"`
	TenantID    string    `json:"tenant_id"     validate:"required"`
	Name        string    `json:"name"          validate:"required,min=3"`
	Active      bool      `json:"active"`
	EntryNodeID string    `json:"entry_node_id"` // Node dispatched on first contact of the day; empty disables the daily trigger
	Timezone    string    `json:"timezone"`      // IANA zone name used for the daily-trigger calendar date
	Nodes       []*Node   `json:"nodes"`
	Edges       []*Edge   `json:"edges"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Edge is a directed connection between two nodes. SourceHandle carries either a
// button/row id (interactive nodes) or a named outcome such as "success"/"error"
// (httpRequest nodes). Empty means the unlabeled default edge.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"  validate:"required"`
	Target       string `json:"target"  validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
}

// Decode validates every node config against its type schema and caches the typed
// config on each node. Unknown node types are rejected here, never during traversal.
func (w *Workflow) Decode() error {
	for _, node := range w.Nodes {
		if err := node.decode(); err != nil {
			return fmt.Errorf("workflow %s: %w", w.ID, err)
		}
	}

	return nil
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// EdgesFrom returns all outgoing edges of a node in definition order.
func (w *Workflow) EdgesFrom(nodeID string) []*Edge {
	edges := make([]*Edge, 0, 2)

	for _, edge := range w.Edges {
		if edge.Source == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// EdgeFrom returns the first outgoing edge of a node whose handle matches, or nil.
func (w *Workflow) EdgeFrom(nodeID, sourceHandle string) *Edge {
	for _, edge := range w.Edges {
		if edge.Source == nodeID && edge.SourceHandle == sourceHandle {
			return edge
		}
	}

	return nil
}

// Location resolves the workflow timezone, falling back to UTC when unset or invalid.
func (w *Workflow) Location() *time.Location {
	if w.Timezone == "" {
		return time.UTC
	}

	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return time.UTC
	}

	return loc
}
