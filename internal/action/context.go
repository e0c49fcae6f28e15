package action

// ClarificationTurn 一轮澄清问答
type ClarificationTurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// CommandContext 解释命令时附带的上下文
type CommandContext struct {
	SelectedProductIDs []string            `json:"selected_product_ids,omitempty"`
	Filters            map[string]any      `json:"filters,omitempty"`
	Clarifications     []ClarificationTurn `json:"clarifications,omitempty"`
}

// WithAnswers 追加澄清问答，返回新的上下文
func (c CommandContext) WithAnswers(turns ...ClarificationTurn) CommandContext {
	out := c
	out.Clarifications = append(append([]ClarificationTurn(nil), c.Clarifications...), turns...)
	return out
}
