package agent

// ToolCallRecord is one executed tool invocation and a summary of what it
// returned.
type ToolCallRecord struct {
	Tool    string `json:"tool"`
	Args    string `json:"args"`
	Result  string `json:"result"`
	IsError bool   `json:"is_error,omitempty"`
}

// Result is the terminal value of an agent run. Success=false always
// carries a non-empty Error; Timeout=true implies Success=false.
type Result struct {
	Success     bool              `json:"success"`
	Text        string            `json:"text,omitempty"`
	Error       string            `json:"error,omitempty"`
	Timeout     bool              `json:"timeout,omitempty"`
	ToolsUsed   []string          `json:"tools_used,omitempty"`
	ToolCalls   []ToolCallRecord  `json:"tool_calls,omitempty"`
	ToolResults map[string]string `json:"tool_results,omitempty"`

	// Multi-step fields, present when the plan route was taken.
	MultiStep      bool `json:"multi_step,omitempty"`
	StepsCompleted int  `json:"steps_completed,omitempty"`
	TotalSteps     int  `json:"total_steps,omitempty"`
}

// failed builds a failure Result carrying the work accumulated so far.
func failed(errMsg, text string, ec *ExecutionContext) *Result {
	res := &Result{
		Success: false,
		Error:   errMsg,
		Text:    text,
	}
	attachContext(res, ec)
	return res
}

func attachContext(res *Result, ec *ExecutionContext) {
	if ec == nil {
		return
	}
	res.ToolsUsed = ec.ToolsUsed()
	res.ToolCalls = ec.CallsSnapshot()
	res.ToolResults = ec.ResultsSnapshot()
}
