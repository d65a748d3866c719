package agent

// AgentContext is the immutable-by-convention snapshot described in §3: a
// system prompt, an ordered message history, and the tool set available to
// the model. Callers construct one per conversation; the driver clones its
// Messages into a private working copy at the start of a run and never
// mutates the caller's copy.
type AgentContext struct {
	SystemPrompt string
	Messages     []AgentMessage
	Tools        []AgentTool
}

// Clone returns a copy of c whose Messages and Tools slices are independent
// of the original (appends to the clone never alias the caller's backing
// arrays). The AgentTool values themselves are shared, not copied; AgentTool
// implementations are expected to be stateless with respect to the run.
func (c AgentContext) Clone() AgentContext {
	messages := make([]AgentMessage, len(c.Messages))
	copy(messages, c.Messages)
	tools := make([]AgentTool, len(c.Tools))
	copy(tools, c.Tools)
	return AgentContext{
		SystemPrompt: c.SystemPrompt,
		Messages:     messages,
		Tools:        tools,
	}
}
