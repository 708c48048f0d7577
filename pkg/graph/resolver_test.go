package graph

import (
	"testing"

	"github.com/omnipro-bh/omniflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildWorkflow(t *testing.T, nodes []*models.Node, edges []*models.Edge) *models.Workflow {
	t.Helper()

	workflow := &models.Workflow{
		ID:       "wf-1",
		TenantID: "tenant-1",
		Name:     "Resolver test",
		Nodes:    nodes,
		Edges:    edges,
	}
	require.NoError(t, workflow.Decode())

	return workflow
}

func textNode(id string) *models.Node {
	return &models.Node{ID: id, Type: models.NodeTypeText, Config: map[string]any{"body": "t"}}
}

func quickReplyNode(id string, buttonIDs ...string) *models.Node {
	buttons := make([]any, 0, len(buttonIDs))
	for _, buttonID := range buttonIDs {
		buttons = append(buttons, map[string]any{"id": buttonID, "title": "Button " + buttonID})
	}

	return &models.Node{ID: id, Type: models.NodeTypeQuickReply, Config: map[string]any{
		"body":    "choose",
		"buttons": buttons,
	}}
}

func carouselNode(id string, cards ...map[string]any) *models.Node {
	anyCards := make([]any, 0, len(cards))
	for _, card := range cards {
		anyCards = append(anyCards, card)
	}

	return &models.Node{ID: id, Type: models.NodeTypeCarousel, Config: map[string]any{"cards": anyCards}}
}

func TestResolveTarget_ExactEdgeBeatsCarouselFallback(t *testing.T) {
	workflow := buildWorkflow(t,
		[]*models.Node{
			quickReplyNode("menu", "other"),
			carouselNode("car", map[string]any{
				"id": "card1",
				"buttons": []any{
					map[string]any{"id": "btnA", "title": "A"},
				},
			}),
			textNode("exact-target"),
			textNode("carousel-target"),
		},
		[]*models.Edge{
			{Source: "car", Target: "carousel-target"},
			{Source: "menu", Target: "exact-target", SourceHandle: "btnA"},
		},
	)

	target := ResolveTarget(workflow, "btnA")
	require.NotNil(t, target)
	assert.Equal(t, "exact-target", target.ID)
}

func TestResolveTarget_InteractiveOwnerMatchingEdge(t *testing.T) {
	workflow := buildWorkflow(t,
		[]*models.Node{
			quickReplyNode("menu", "yes", "no"),
			textNode("yes-branch"),
			textNode("no-branch"),
		},
		[]*models.Edge{
			// Handles here deliberately differ from button ids so stage 1 misses and
			// the owner search picks the first outgoing edge.
			{Source: "menu", Target: "yes-branch", SourceHandle: "handle-a"},
			{Source: "menu", Target: "no-branch", SourceHandle: "handle-b"},
		},
	)

	target := ResolveTarget(workflow, "yes")
	require.NotNil(t, target)
	assert.Equal(t, "yes-branch", target.ID, "first outgoing edge of the owning node")
}

func TestResolveTarget_ListRowOwner(t *testing.T) {
	list := &models.Node{ID: "list", Type: models.NodeTypeListMessage, Config: map[string]any{
		"body": "pick",
		"sections": []any{
			map[string]any{"rows": []any{
				map[string]any{"id": "row-1", "title": "One"},
				map[string]any{"id": "row-2", "title": "Two"},
			}},
		},
	}}

	workflow := buildWorkflow(t,
		[]*models.Node{list, textNode("one"), textNode("two")},
		[]*models.Edge{
			{Source: "list", Target: "one", SourceHandle: "row-1"},
			{Source: "list", Target: "two", SourceHandle: "row-2"},
		},
	)

	target := ResolveTarget(workflow, "row-2")
	require.NotNil(t, target)
	assert.Equal(t, "two", target.ID)
}

func TestResolveTarget_CarouselCardIDEdge(t *testing.T) {
	workflow := buildWorkflow(t,
		[]*models.Node{
			carouselNode("car", map[string]any{
				"id": "card1",
				"buttons": []any{
					map[string]any{"id": "buy1", "title": "Buy"},
				},
			}),
			textNode("card-target"),
		},
		[]*models.Edge{
			{Source: "car", Target: "card-target", SourceHandle: "card1"},
		},
	)

	target := ResolveTarget(workflow, "buy1")
	require.NotNil(t, target)
	assert.Equal(t, "card-target", target.ID)
}

func TestResolveTarget_CarouselTitleSubstring(t *testing.T) {
	workflow := buildWorkflow(t,
		[]*models.Node{
			carouselNode("car", map[string]any{
				"buttons": []any{
					map[string]any{"id": "b-77", "title": "Order Deluxe"},
				},
			}),
			textNode("deluxe"),
		},
		[]*models.Edge{
			{Source: "car", Target: "deluxe", SourceHandle: "deluxe"},
		},
	)

	target := ResolveTarget(workflow, "b-77")
	require.NotNil(t, target)
	assert.Equal(t, "deluxe", target.ID)
}

func TestResolveTarget_CarouselPositionalFallback(t *testing.T) {
	workflow := buildWorkflow(t,
		[]*models.Node{
			carouselNode("car",
				map[string]any{"buttons": []any{
					map[string]any{"id": "first", "title": "First"},
				}},
				map[string]any{"buttons": []any{
					map[string]any{"id": "second", "title": "Second"},
				}},
			),
			textNode("t1"),
			textNode("t2"),
		},
		[]*models.Edge{
			{Source: "car", Target: "t1", SourceHandle: "h1"},
			{Source: "car", Target: "t2", SourceHandle: "h2"},
		},
	)

	target := ResolveTarget(workflow, "second")
	require.NotNil(t, target)
	assert.Equal(t, "t2", target.ID)
}

func TestResolveTarget_BroadSweepFirstEdge(t *testing.T) {
	workflow := buildWorkflow(t,
		[]*models.Node{
			carouselNode("car", map[string]any{
				"buttons": []any{
					map[string]any{"id": "orphan", "title": "Zzz"},
					map[string]any{"id": "other", "title": "Other"},
				},
			}),
			textNode("fallthrough"),
		},
		[]*models.Edge{
			// One edge for two quick-reply buttons: positional fallback cannot apply,
			// the broad sweep takes the first outgoing edge.
			{Source: "car", Target: "fallthrough", SourceHandle: "unrelated"},
		},
	)

	target := ResolveTarget(workflow, "orphan")
	require.NotNil(t, target)
	assert.Equal(t, "fallthrough", target.ID)
}

func TestResolveTarget_NoMatchIsNil(t *testing.T) {
	workflow := buildWorkflow(t,
		[]*models.Node{quickReplyNode("menu", "yes")},
		nil,
	)

	assert.Nil(t, ResolveTarget(workflow, "nope"))
	assert.Nil(t, ResolveTarget(workflow, ""))
	// Owner exists but has no outgoing edges: legitimate terminal.
	assert.Nil(t, ResolveTarget(workflow, "yes"))
}
