package models

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflow_Validation(t *testing.T) {
	validate := validator.New()

	workflow := &Workflow{
		ID:       "wf-1",
		TenantID: "tenant-1",
		Name:     "Welcome flow",
		Active:   true,
	}
	assert.NoError(t, validate.Struct(workflow))

	workflow.Name = "ab" // below min
	assert.Error(t, validate.Struct(workflow))
}

func TestWorkflow_Decode_RejectsUnknownNodeType(t *testing.T) {
	workflow := &Workflow{
		ID:       "wf-1",
		TenantID: "tenant-1",
		Name:     "Broken flow",
		Nodes: []*Node{
			{ID: "n1", Type: "telepathy", Config: map[string]any{}},
		},
	}

	err := workflow.Decode()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node type")
}

func TestWorkflow_Decode_TypedConfigs(t *testing.T) {
	workflow := &Workflow{
		ID:       "wf-1",
		TenantID: "tenant-1",
		Name:     "Typed flow",
		Nodes: []*Node{
			{ID: "n1", Type: NodeTypeText, Config: map[string]any{"body": "hello"}},
			{ID: "n2", Type: NodeTypeQuickReply, Config: map[string]any{
				"body": "pick one",
				"buttons": []any{
					map[string]any{"id": "b1", "title": "Yes"},
					map[string]any{"id": "b2", "title": "No"},
				},
			}},
			{ID: "n3", Type: NodeTypeHTTPRequest, Config: map[string]any{
				"url":    "https://api.partner.com/quote",
				"method": "POST",
				"response_mapping": []any{
					map[string]any{"json_path": "data.price", "variable_name": "price"},
				},
			}},
		},
	}

	require.NoError(t, workflow.Decode())

	text, ok := workflow.NodeByID("n1").Spec().(TextConfig)
	require.True(t, ok)
	assert.Equal(t, "hello", text.Body)

	interactive, ok := workflow.NodeByID("n2").Spec().(InteractiveConfig)
	require.True(t, ok)
	require.Len(t, interactive.Buttons, 2)
	assert.Equal(t, ButtonKindQuickReply, interactive.Buttons[0].EffectiveKind())

	httpSpec, ok := workflow.NodeByID("n3").Spec().(HTTPConfig)
	require.True(t, ok)
	assert.Equal(t, "POST", httpSpec.Method)
	require.Len(t, httpSpec.ResponseMapping, 1)
	assert.Equal(t, "price", httpSpec.ResponseMapping[0].VariableName)
}

func TestDecodeNodeConfig_MissingRequiredField(t *testing.T) {
	_, err := DecodeNodeConfig(NodeTypeText, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid text config")
}

func TestWorkflow_EdgeHelpers(t *testing.T) {
	workflow := &Workflow{
		Edges: []*Edge{
			{Source: "n1", Target: "n2", SourceHandle: "b1"},
			{Source: "n1", Target: "n3"},
			{Source: "n2", Target: "n3"},
		},
	}

	edges := workflow.EdgesFrom("n1")
	require.Len(t, edges, 2)
	assert.Equal(t, "n2", edges[0].Target)

	edge := workflow.EdgeFrom("n1", "b1")
	require.NotNil(t, edge)
	assert.Equal(t, "n2", edge.Target)

	assert.Nil(t, workflow.EdgeFrom("n1", "unknown"))
}

func TestNode_Classification(t *testing.T) {
	assert.True(t, (&Node{Type: NodeTypeQuickReply}).IsInteractive())
	assert.True(t, (&Node{Type: NodeTypeListMessage}).IsInteractive())
	assert.True(t, (&Node{Type: NodeTypeCarousel}).IsInteractive())
	assert.False(t, (&Node{Type: NodeTypeText}).IsInteractive())
	assert.False(t, (&Node{Type: NodeTypeHTTPRequest}).IsInteractive())

	assert.True(t, (&Node{Type: NodeTypeText}).IsMessageNode())
	assert.False(t, (&Node{Type: NodeTypeHTTPRequest}).IsMessageNode())
}

func TestWorkflow_Location(t *testing.T) {
	assert.Equal(t, time.UTC, (&Workflow{}).Location())
	assert.Equal(t, time.UTC, (&Workflow{Timezone: "Atlantis/Nowhere"}).Location())

	loc := (&Workflow{Timezone: "Asia/Bahrain"}).Location()
	assert.Equal(t, "Asia/Bahrain", loc.String())
}

func TestConversationState_CopySemantics(t *testing.T) {
	state := &ConversationState{
		WorkflowID: "wf-1",
		ContactID:  "c1",
		Context:    map[string]any{"a": "1"},
	}

	next := state.WithContext(map[string]any{"b": "2"})
	assert.Equal(t, map[string]any{"a": "1"}, state.Context)
	assert.Equal(t, map[string]any{"a": "1", "b": "2"}, next.Context)

	moved := state.WithNode("n9", time.Now())
	assert.Equal(t, "n9", moved.CurrentNodeID)
	assert.Empty(t, state.CurrentNodeID)
}

func TestInboundEvent_SelectionSignal(t *testing.T) {
	event := &InboundEvent{ButtonReplyID: "wf-7:btnA"}

	signal, ok := event.SelectionSignal()
	require.True(t, ok)
	assert.Equal(t, "btnA", signal)

	event = &InboundEvent{ListReplyID: "row-3"}
	signal, ok = event.SelectionSignal()
	require.True(t, ok)
	assert.Equal(t, "row-3", signal)

	event = &InboundEvent{Text: "hello"}
	_, ok = event.SelectionSignal()
	assert.False(t, ok)
}

func TestInboundEvent_HasContent(t *testing.T) {
	assert.True(t, (&InboundEvent{Text: "hi"}).HasContent())
	assert.True(t, (&InboundEvent{ButtonReplyID: "b1"}).HasContent())
	assert.False(t, (&InboundEvent{Text: "   "}).HasContent())
	assert.False(t, (&InboundEvent{}).HasContent())
}
