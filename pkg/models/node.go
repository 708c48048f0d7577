package models

import "fmt"

// NodeType enumerates the fixed set of message kinds a node can be.
type NodeType string

const (
	NodeTypeText            NodeType = "text"
	NodeTypeMedia           NodeType = "media"
	NodeTypeLocation        NodeType = "location"
	NodeTypeQuickReply      NodeType = "quickReply"
	NodeTypeQuickReplyImage NodeType = "quickReplyImage"
	NodeTypeQuickReplyVideo NodeType = "quickReplyVideo"
	NodeTypeListMessage     NodeType = "listMessage"
	NodeTypeButtons         NodeType = "buttons"
	NodeTypeCarousel        NodeType = "carousel"
	NodeTypeHTTPRequest     NodeType = "httpRequest"
)

// Node is one step in a workflow graph. Config holds the raw duck-typed JSON object;
// the typed view is populated by Workflow.Decode and read through Spec().
type Node struct {
	ID     string         `json:"id"   validate:"required"`
	Type   NodeType       `json:"type" validate:"required"`
	Config map[string]any `json:"config"`

	spec NodeConfig
}

// Spec returns the typed configuration decoded by Workflow.Decode. It is nil for nodes
// of a workflow that was never decoded.
func (n *Node) Spec() NodeConfig {
	return n.spec
}

func (n *Node) decode() error {
	spec, err := DecodeNodeConfig(n.Type, n.Config)
	if err != nil {
		return fmt.Errorf("node %s: %w", n.ID, err)
	}

	n.spec = spec

	return nil
}

// IsInteractive reports whether dispatching this node waits for a user selection
// before the graph can advance (quick-reply family, button and list messages).
func (n *Node) IsInteractive() bool {
	switch n.Type {
	case NodeTypeQuickReply, NodeTypeQuickReplyImage, NodeTypeQuickReplyVideo,
		NodeTypeButtons, NodeTypeListMessage, NodeTypeCarousel:
		return true
	case NodeTypeText, NodeTypeMedia, NodeTypeLocation, NodeTypeHTTPRequest:
		return false
	}

	return false
}

// IsMessageNode reports whether the node dispatches an outbound message.
func (n *Node) IsMessageNode() bool {
	return n.Type != NodeTypeHTTPRequest
}

// HasButtons reports whether the node config can carry button definitions
// (quick-reply family and plain button messages, excluding lists and carousels).
func (n *Node) HasButtons() bool {
	switch n.Type {
	case NodeTypeQuickReply, NodeTypeQuickReplyImage, NodeTypeQuickReplyVideo, NodeTypeButtons:
		return true
	case NodeTypeText, NodeTypeMedia, NodeTypeLocation, NodeTypeListMessage,
		NodeTypeCarousel, NodeTypeHTTPRequest:
		return false
	}

	return false
}
