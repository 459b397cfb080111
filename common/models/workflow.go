package models

// GeneratedWorkflow is the importable artifact for the automation
// platform: a node graph in the platform's native JSON shape.
type GeneratedWorkflow struct {
	Name        string                 `json:"name"`
	Nodes       []WorkflowNode         `json:"nodes"`
	Connections map[string]NodePorts   `json:"connections"`
	Settings    map[string]interface{} `json:"settings,omitempty"`
	Meta        *GenerationMeta        `json:"meta,omitempty"`
}

// WorkflowNode is one typed node in the generated graph. The retry
// fields and Notes sit at node level, matching the platform's import
// format, and are written by the enhancement pass.
type WorkflowNode struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	Type        string                   `json:"type"`
	TypeVersion float64                  `json:"typeVersion"`
	Position    []float64                `json:"position"`
	Parameters  map[string]interface{}   `json:"parameters,omitempty"`
	Credentials map[string]CredentialRef `json:"credentials,omitempty"`

	RetryOnFail      bool   `json:"retryOnFail,omitempty"`
	MaxTries         int    `json:"maxTries,omitempty"`
	WaitBetweenTries int    `json:"waitBetweenTries,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

// CredentialRef points at a credential the platform resolves at import
// time. Generators emit placeholders; real ids are bound by the user.
type CredentialRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// NodePorts maps an output port name ("main", "error", ...) to its
// ordered branch lists. Branch index n feeds the node's nth output.
type NodePorts map[string][][]ConnectionTarget

// ConnectionTarget is one inbound endpoint of a connection
type ConnectionTarget struct {
	Node  string `json:"node"`
	Port  string `json:"type"`
	Index int    `json:"index"`
}

// GenerationMeta records how the workflow came to be. Advisory only;
// the platform ignores it on import.
type GenerationMeta struct {
	Strategy     string           `json:"strategy"`
	Validation   string           `json:"validation,omitempty"`
	Enhancements []string         `json:"enhancements,omitempty"`
	DurationsMS  map[string]int64 `json:"durations_ms,omitempty"`
}

// NodeByName returns the node with the given display name, or nil
func (w *GeneratedWorkflow) NodeByName(name string) *WorkflowNode {
	for i := range w.Nodes {
		if w.Nodes[i].Name == name {
			return &w.Nodes[i]
		}
	}
	return nil
}

// NodeNames returns all node display names in declaration order
func (w *GeneratedWorkflow) NodeNames() []string {
	names := make([]string, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		names = append(names, n.Name)
	}
	return names
}

// HasOutgoing reports whether the named node has at least one outgoing
// connection on any port
func (w *GeneratedWorkflow) HasOutgoing(name string) bool {
	ports, ok := w.Connections[name]
	if !ok {
		return false
	}
	for _, branches := range ports {
		for _, targets := range branches {
			if len(targets) > 0 {
				return true
			}
		}
	}
	return false
}
