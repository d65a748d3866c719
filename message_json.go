package agent

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes an AgentMessage while preserving the concrete
// ContentPart types stored in Content via an explicit Kind discriminator,
// the same pattern model.Message uses for model.Part.
func (m AgentMessage) MarshalJSON() ([]byte, error) {
	type alias struct {
		Kind       MessageKind `json:"kind"`
		Timestamp  string      `json:"timestamp"`
		Content    []any       `json:"content,omitempty"`
		StopReason StopReason  `json:"stopReason,omitempty"`
		Usage      any         `json:"usage,omitzero"`
		Provider   string      `json:"provider,omitempty"`
		Model      string      `json:"model,omitempty"`
		ToolCallID string      `json:"toolCallId,omitempty"`
		ToolName   string      `json:"toolName,omitempty"`
		IsError    bool        `json:"isError,omitempty"`
		Details    any         `json:"details,omitempty"`
		Role       string      `json:"role,omitempty"`
		Payload    any         `json:"payload,omitempty"`
	}

	a := alias{
		Kind:       m.Kind,
		Timestamp:  m.Timestamp.Format(timeLayout),
		StopReason: m.StopReason,
		Usage:      m.Usage,
		Provider:   m.Provider,
		Model:      m.Model,
		ToolCallID: m.ToolCallID,
		ToolName:   m.ToolName,
		IsError:    m.IsError,
		Details:    m.Details,
		Role:       m.Role,
		Payload:    m.Payload,
	}
	if len(m.Content) > 0 {
		a.Content = make([]any, 0, len(m.Content))
		for i, p := range m.Content {
			enc, err := encodeContentPart(p)
			if err != nil {
				return nil, fmt.Errorf("encode content[%d]: %w", i, err)
			}
			a.Content = append(a.Content, enc)
		}
	}
	return json.Marshal(a)
}

// UnmarshalJSON decodes an AgentMessage while materializing concrete
// ContentPart implementations.
func (m *AgentMessage) UnmarshalJSON(data []byte) error {
	type alias struct {
		Kind       MessageKind       `json:"kind"`
		Timestamp  string            `json:"timestamp"`
		Content    []json.RawMessage `json:"content"`
		StopReason StopReason        `json:"stopReason"`
		Usage      json.RawMessage   `json:"usage"`
		Provider   string            `json:"provider"`
		Model      string            `json:"model"`
		ToolCallID string            `json:"toolCallId"`
		ToolName   string            `json:"toolName"`
		IsError    bool              `json:"isError"`
		Details    any               `json:"details"`
		Role       string            `json:"role"`
		Payload    any               `json:"payload"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	ts, err := parseTime(a.Timestamp)
	if err != nil {
		return fmt.Errorf("decode timestamp: %w", err)
	}
	*m = AgentMessage{
		Kind:       a.Kind,
		Timestamp:  ts,
		StopReason: a.StopReason,
		Provider:   a.Provider,
		Model:      a.Model,
		ToolCallID: a.ToolCallID,
		ToolName:   a.ToolName,
		IsError:    a.IsError,
		Details:    a.Details,
		Role:       a.Role,
		Payload:    a.Payload,
	}
	if len(a.Usage) > 0 {
		if err := json.Unmarshal(a.Usage, &m.Usage); err != nil {
			return fmt.Errorf("decode usage: %w", err)
		}
	}
	if len(a.Content) == 0 {
		return nil
	}
	m.Content = make([]ContentPart, 0, len(a.Content))
	for i, raw := range a.Content {
		part, err := decodeContentPart(raw)
		if err != nil {
			return fmt.Errorf("decode content[%d]: %w", i, err)
		}
		m.Content = append(m.Content, part)
	}
	return nil
}

func encodeContentPart(p ContentPart) (any, error) {
	switch v := p.(type) {
	case TextPart:
		return struct {
			Kind string `json:"kind"`
			TextPart
		}{Kind: "text", TextPart: v}, nil
	case ThinkingPart:
		return struct {
			Kind string `json:"kind"`
			ThinkingPart
		}{Kind: "thinking", ThinkingPart: v}, nil
	case ToolCallPart:
		return struct {
			Kind string `json:"kind"`
			ToolCallPart
		}{Kind: "tool_call", ToolCallPart: v}, nil
	case ImagePart:
		return struct {
			Kind string `json:"kind"`
			ImagePart
		}{Kind: "image", ImagePart: v}, nil
	case StructuredPart:
		return struct {
			Kind string `json:"kind"`
			StructuredPart
		}{Kind: "structured", StructuredPart: v}, nil
	default:
		return nil, fmt.Errorf("unknown content part type %T", p)
	}
}

func decodeContentPart(raw json.RawMessage) (ContentPart, error) {
	var disc struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &disc); err != nil {
		return nil, fmt.Errorf("decode content kind: %w", err)
	}
	switch disc.Kind {
	case "text":
		var p TextPart
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode TextPart: %w", err)
		}
		return p, nil
	case "thinking":
		var p ThinkingPart
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode ThinkingPart: %w", err)
		}
		return p, nil
	case "tool_call":
		var p ToolCallPart
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode ToolCallPart: %w", err)
		}
		return p, nil
	case "image":
		var p ImagePart
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode ImagePart: %w", err)
		}
		return p, nil
	case "structured":
		var p StructuredPart
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode StructuredPart: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown content part kind %q", disc.Kind)
	}
}
