package models

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/xeipuuv/gojsonschema"
)

// NodeConfig is the typed view of a node's raw config map, one variant per node type.
type NodeConfig interface {
	nodeConfig()
}

// ButtonKind maps to the provider button type.
type ButtonKind string

const (
	ButtonKindQuickReply ButtonKind = "quick_reply"
	ButtonKindCall       ButtonKind = "call"
	ButtonKindURL        ButtonKind = "url"
	ButtonKindCopy       ButtonKind = "copy"
)

// Button is a single pressable element on an interactive or carousel node.
// Kind decides which value field is required: call needs Phone, url needs URL,
// copy needs CopyCode. An empty Kind means quick_reply.
type Button struct {
	ID       string     `json:"id"        mapstructure:"id"`
	Title    string     `json:"title"     mapstructure:"title"`
	Kind     ButtonKind `json:"kind"      mapstructure:"kind"`
	Phone    string     `json:"phone"     mapstructure:"phone"`
	URL      string     `json:"url"       mapstructure:"url"`
	CopyCode string     `json:"copy_code" mapstructure:"copy_code"`
}

// EffectiveKind normalizes an unset kind to quick_reply.
func (b Button) EffectiveKind() ButtonKind {
	if b.Kind == "" {
		return ButtonKindQuickReply
	}

	return b.Kind
}

type TextConfig struct {
	Body string `json:"body" mapstructure:"body"`
}

type MediaConfig struct {
	MediaURL  string `json:"media_url"  mapstructure:"media_url"`
	MediaType string `json:"media_type" mapstructure:"media_type"` // image, video, audio, document
	Caption   string `json:"caption"    mapstructure:"caption"`
}

type LocationConfig struct {
	Latitude  float64 `json:"latitude"  mapstructure:"latitude"`
	Longitude float64 `json:"longitude" mapstructure:"longitude"`
	Name      string  `json:"name"      mapstructure:"name"`
	Address   string  `json:"address"   mapstructure:"address"`
}

// InteractiveConfig backs the quickReply family and plain button messages.
type InteractiveConfig struct {
	Header   string   `json:"header"    mapstructure:"header"`
	Body     string   `json:"body"      mapstructure:"body"`
	Footer   string   `json:"footer"    mapstructure:"footer"`
	MediaURL string   `json:"media_url" mapstructure:"media_url"` // quickReplyImage / quickReplyVideo
	Buttons  []Button `json:"buttons"   mapstructure:"buttons"`
}

type ListRow struct {
	ID          string `json:"id"          mapstructure:"id"`
	Title       string `json:"title"       mapstructure:"title"`
	Description string `json:"description" mapstructure:"description"`
}

type ListSection struct {
	Title string    `json:"title" mapstructure:"title"`
	Rows  []ListRow `json:"rows"  mapstructure:"rows"`
}

type ListConfig struct {
	Header     string        `json:"header"      mapstructure:"header"`
	Body       string        `json:"body"        mapstructure:"body"`
	Footer     string        `json:"footer"      mapstructure:"footer"`
	ButtonText string        `json:"button_text" mapstructure:"button_text"`
	Sections   []ListSection `json:"sections"    mapstructure:"sections"`
}

type CarouselCard struct {
	ID        string   `json:"id"         mapstructure:"id"`
	MediaURL  string   `json:"media_url"  mapstructure:"media_url"`
	MediaType string   `json:"media_type" mapstructure:"media_type"`
	Text      string   `json:"text"       mapstructure:"text"`
	Buttons   []Button `json:"buttons"    mapstructure:"buttons"`
}

type CarouselConfig struct {
	Body  string         `json:"body"  mapstructure:"body"`
	Cards []CarouselCard `json:"cards" mapstructure:"cards"`
}

// HTTPAuthType enumerates supported outbound auth schemes.
type HTTPAuthType string

const (
	HTTPAuthNone   HTTPAuthType = "none"
	HTTPAuthBearer HTTPAuthType = "bearer"
	HTTPAuthBasic  HTTPAuthType = "basic"
)

type HTTPAuth struct {
	Type     HTTPAuthType `json:"type"     mapstructure:"type"`
	Token    string       `json:"token"    mapstructure:"token"`
	Username string       `json:"username" mapstructure:"username"`
	Password string       `json:"password" mapstructure:"password"`
}

// ResponseMapping extracts one variable from the parsed response body.
type ResponseMapping struct {
	JSONPath     string `json:"json_path"     mapstructure:"json_path"`
	VariableName string `json:"variable_name" mapstructure:"variable_name"`
}

// HTTPBodyType selects how the request body is encoded for write methods.
type HTTPBodyType string

const (
	HTTPBodyJSON HTTPBodyType = "json"
	HTTPBodyForm HTTPBodyType = "form"
)

type HTTPConfig struct {
	URL             string            `json:"url"              mapstructure:"url"`
	Method          string            `json:"method"           mapstructure:"method"`
	Headers         map[string]string `json:"headers"          mapstructure:"headers"`
	QueryParams     map[string]string `json:"query_params"     mapstructure:"query_params"`
	BodyType        HTTPBodyType      `json:"body_type"        mapstructure:"body_type"`
	Body            string            `json:"body"             mapstructure:"body"`
	FormFields      map[string]string `json:"form_fields"      mapstructure:"form_fields"`
	Auth            HTTPAuth          `json:"auth"             mapstructure:"auth"`
	TimeoutSeconds  int               `json:"timeout_seconds"  mapstructure:"timeout_seconds"`
	ResponseMapping []ResponseMapping `json:"response_mapping" mapstructure:"response_mapping"`
}

func (TextConfig) nodeConfig()        {}
func (MediaConfig) nodeConfig()       {}
func (LocationConfig) nodeConfig()    {}
func (InteractiveConfig) nodeConfig() {}
func (ListConfig) nodeConfig()        {}
func (CarouselConfig) nodeConfig()    {}
func (HTTPConfig) nodeConfig()        {}

// DecodeNodeConfig validates a raw config map against the node type's JSON schema and
// decodes it into the matching typed variant. Unknown node types are an error.
func DecodeNodeConfig(nodeType NodeType, config map[string]any) (NodeConfig, error) {
	if config == nil {
		config = map[string]any{}
	}

	if err := validateConfigSchema(nodeType, config); err != nil {
		return nil, err
	}

	switch nodeType {
	case NodeTypeText:
		return decodeInto[TextConfig](config)
	case NodeTypeMedia:
		return decodeInto[MediaConfig](config)
	case NodeTypeLocation:
		return decodeInto[LocationConfig](config)
	case NodeTypeQuickReply, NodeTypeQuickReplyImage, NodeTypeQuickReplyVideo, NodeTypeButtons:
		return decodeInto[InteractiveConfig](config)
	case NodeTypeListMessage:
		return decodeInto[ListConfig](config)
	case NodeTypeCarousel:
		return decodeInto[CarouselConfig](config)
	case NodeTypeHTTPRequest:
		return decodeInto[HTTPConfig](config)
	}

	return nil, fmt.Errorf("unknown node type %q", nodeType)
}

func decodeInto[T NodeConfig](config map[string]any) (NodeConfig, error) {
	var spec T

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &spec,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build config decoder: %w", err)
	}

	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return spec, nil
}

func validateConfigSchema(nodeType NodeType, config map[string]any) error {
	schema, ok := configSchemas[nodeType]
	if !ok {
		return fmt.Errorf("unknown node type %q", nodeType)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		return fmt.Errorf("invalid %s config: %s", nodeType, result.Errors()[0].String())
	}

	return nil
}
