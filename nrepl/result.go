package nrepl

import "strings"

// Result is the reduction of an evaluation's response frames: return values
// in arrival order, concatenated standard output, concatenated error output.
// Fields whose source frames were empty are omitted when serialized.
type Result struct {
	Values []string `json:"values,omitempty"`
	Stdout string   `json:"stdout,omitempty"`
	Stderr string   `json:"stderr,omitempty"`
}

// Project reduces response frames to a Result. Value contents are opaque
// text as printed by the server; no interpretation happens here.
func Project(msgs []Message) Result {
	var result Result
	var stdout, stderr strings.Builder

	for _, msg := range msgs {
		if v, ok := msg.Value(); ok {
			result.Values = append(result.Values, v)
		}
		if out, ok := msg.Out(); ok {
			stdout.WriteString(out)
		}
		if errText, ok := msg.Err(); ok {
			stderr.WriteString(errText)
		}
	}

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	return result
}
