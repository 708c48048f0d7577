// Package graph resolves which node an inbound signal (button/row id or named
// outcome handle) transitions to, using a layered fallback search over the
// workflow definition.
package graph

import (
	"strings"

	"github.com/omnipro-bh/omniflow/pkg/models"
)

// Named outcome handles used by httpRequest nodes.
const (
	HandleSuccess = "success"
	HandleError   = "error"
)

// ResolveTarget finds the node to transition to for the given signal. Stages run in
// strict order, stopping at the first match:
//
//  1. exact edge.SourceHandle match anywhere in the graph
//  2. interactive node (quick-reply family, buttons, lists) owning a button/row with
//     the signal id, following its matching or first outgoing edge
//  3. carousel node owning a card button with the signal id, with its own
//     edge-preference chain
//  4. broad sweep over any interactive-capable node containing the signal id
//
// A nil return is a legitimate terminal case (for example a native call/url button
// with no graph edge), not an error.
func ResolveTarget(workflow *models.Workflow, signal string) *models.Node {
	if signal == "" {
		return nil
	}

	if node := resolveExactEdge(workflow, signal); node != nil {
		return node
	}

	if node := resolveInteractiveOwner(workflow, signal); node != nil {
		return node
	}

	if node := resolveCarouselOwner(workflow, signal); node != nil {
		return node
	}

	return resolveBroadSweep(workflow, signal)
}

// Stage 1: an edge labeled with exactly this signal wins over every other heuristic.
func resolveExactEdge(workflow *models.Workflow, signal string) *models.Node {
	for _, edge := range workflow.Edges {
		if edge.SourceHandle == signal {
			return workflow.NodeByID(edge.Target)
		}
	}

	return nil
}

// Stage 2: find the interactive node that owns the clicked button/row, then leave it
// through the edge labeled with the signal, falling back to its first outgoing edge.
func resolveInteractiveOwner(workflow *models.Workflow, signal string) *models.Node {
	for _, node := range workflow.Nodes {
		if !node.HasButtons() && node.Type != models.NodeTypeListMessage {
			continue
		}

		if !containsID(interactiveIDs(node), signal) {
			continue
		}

		return followNodeEdge(workflow, node, signal)
	}

	return nil
}

// Stage 3: carousel buttons. Preference order: edge keyed by button id, then by card
// id, then by button-title substring, then the positional fallback.
func resolveCarouselOwner(workflow *models.Workflow, signal string) *models.Node {
	for _, node := range workflow.Nodes {
		spec, ok := node.Spec().(models.CarouselConfig)
		if !ok {
			continue
		}

		matchedCard, matchedButton := findCarouselButton(spec, signal)
		if matchedButton == nil {
			continue
		}

		if edge := workflow.EdgeFrom(node.ID, signal); edge != nil {
			return workflow.NodeByID(edge.Target)
		}

		if edge := workflow.EdgeFrom(node.ID, matchedCard.ID); matchedCard.ID != "" && edge != nil {
			return workflow.NodeByID(edge.Target)
		}

		if target := matchByTitleSubstring(workflow, node, matchedButton.Title); target != nil {
			return target
		}

		// Positional fallback: with exactly as many outgoing edges as quick-reply
		// buttons, pick the edge at the matched button's ordinal. This is a fragile
		// parity heuristic; certain carousel layouts can pick a plausibly-wrong edge.
		if target := matchByPosition(workflow, node, spec, signal); target != nil {
			return target
		}

		// Owner found but no edge preference applied; fall through to stage 4 which
		// will take the first outgoing edge if one exists.
	}

	return nil
}

// Stage 4: broad sweep across every node that can carry button/row ids.
func resolveBroadSweep(workflow *models.Workflow, signal string) *models.Node {
	for _, node := range workflow.Nodes {
		if !containsID(allSelectableIDs(node), signal) {
			continue
		}

		return followNodeEdge(workflow, node, signal)
	}

	return nil
}

func followNodeEdge(workflow *models.Workflow, node *models.Node, signal string) *models.Node {
	if edge := workflow.EdgeFrom(node.ID, signal); edge != nil {
		return workflow.NodeByID(edge.Target)
	}

	edges := workflow.EdgesFrom(node.ID)
	if len(edges) == 0 {
		return nil
	}

	return workflow.NodeByID(edges[0].Target)
}

func matchByTitleSubstring(workflow *models.Workflow, node *models.Node, title string) *models.Node {
	if title == "" {
		return nil
	}

	lowered := strings.ToLower(title)

	for _, edge := range workflow.EdgesFrom(node.ID) {
		if edge.SourceHandle == "" {
			continue
		}

		if strings.Contains(lowered, strings.ToLower(edge.SourceHandle)) {
			return workflow.NodeByID(edge.Target)
		}
	}

	return nil
}

func matchByPosition(workflow *models.Workflow, node *models.Node, spec models.CarouselConfig, signal string) *models.Node {
	quickReplies := make([]models.Button, 0, 4)

	for _, card := range spec.Cards {
		for _, button := range card.Buttons {
			if button.EffectiveKind() == models.ButtonKindQuickReply {
				quickReplies = append(quickReplies, button)
			}
		}
	}

	edges := workflow.EdgesFrom(node.ID)
	if len(edges) == 0 || len(edges) != len(quickReplies) {
		return nil
	}

	for i, button := range quickReplies {
		if button.ID == signal {
			return workflow.NodeByID(edges[i].Target)
		}
	}

	return nil
}

func findCarouselButton(spec models.CarouselConfig, signal string) (*models.CarouselCard, *models.Button) {
	for i := range spec.Cards {
		for j := range spec.Cards[i].Buttons {
			if spec.Cards[i].Buttons[j].ID == signal {
				return &spec.Cards[i], &spec.Cards[i].Buttons[j]
			}
		}
	}

	return nil, nil
}

// interactiveIDs returns the clickable ids owned by a non-carousel interactive node.
func interactiveIDs(node *models.Node) []string {
	switch spec := node.Spec().(type) {
	case models.InteractiveConfig:
		ids := make([]string, 0, len(spec.Buttons))
		for _, button := range spec.Buttons {
			ids = append(ids, button.ID)
		}

		return ids
	case models.ListConfig:
		var ids []string
		for _, section := range spec.Sections {
			for _, row := range section.Rows {
				ids = append(ids, row.ID)
			}
		}

		return ids
	}

	return nil
}

// allSelectableIDs includes carousel card buttons on top of interactiveIDs.
func allSelectableIDs(node *models.Node) []string {
	if spec, ok := node.Spec().(models.CarouselConfig); ok {
		var ids []string
		for _, card := range spec.Cards {
			for _, button := range card.Buttons {
				ids = append(ids, button.ID)
			}
		}

		return ids
	}

	return interactiveIDs(node)
}

func containsID(ids []string, signal string) bool {
	for _, id := range ids {
		if id != "" && id == signal {
			return true
		}
	}

	return false
}
