package upstream

import (
	"strings"

	"github.com/proapi/proapi/pkg/api"
)

// Accumulator collects the terminal view of one exchange while chunks flow
// through a normalizer. Every dialect embeds one.
type Accumulator struct {
	content strings.Builder
	calls   []api.ToolCall

	prompt     int
	completion int
	total      int
	finish     string
}

func (a *Accumulator) AddText(s string) {
	a.content.WriteString(s)
}

// AddCall merges one tool-call fragment. A fragment with an id either opens
// a new call or extends the call carrying that id; a fragment without an id
// extends the most recently opened call. Arguments concatenate across
// fragments.
func (a *Accumulator) AddCall(fragment api.ToolCall) {
	if fragment.ID != "" {
		for i := range a.calls {
			if a.calls[i].ID == fragment.ID {
				a.merge(i, fragment)
				return
			}
		}
		a.calls = append(a.calls, api.ToolCall{
			ID:       fragment.ID,
			Type:     callType(fragment),
			Function: fragment.Function,
		})
		return
	}

	if len(a.calls) == 0 {
		a.calls = append(a.calls, api.ToolCall{Type: callType(fragment), Function: fragment.Function})
		return
	}
	a.merge(len(a.calls)-1, fragment)
}

func (a *Accumulator) merge(i int, fragment api.ToolCall) {
	if a.calls[i].Function.Name == "" {
		a.calls[i].Function.Name = fragment.Function.Name
	}
	a.calls[i].Function.Arguments += fragment.Function.Arguments
}

func callType(fragment api.ToolCall) string {
	if fragment.Type != "" {
		return fragment.Type
	}
	return "function"
}

func (a *Accumulator) SetUsage(prompt, completion, total int) {
	a.prompt, a.completion, a.total = prompt, completion, total
	if total == 0 {
		a.total = prompt + completion
	}
}

func (a *Accumulator) SetFinish(reason string) {
	a.finish = reason
}

// Stats snapshots the accumulated state. Calling it repeatedly without
// intervening writes returns identical values.
func (a *Accumulator) Stats() Stats {
	calls := make([]api.ToolCall, len(a.calls))
	copy(calls, a.calls)
	if len(calls) == 0 {
		calls = nil
	}
	return Stats{
		Content:          a.content.String(),
		ToolCalls:        calls,
		PromptTokens:     a.prompt,
		CompletionTokens: a.completion,
		TotalTokens:      a.total,
		FinishReason:     a.finish,
	}
}
