package tools

import (
	"fmt"

	"pfagent/model"
)

// Result records the outcome of a single tool call. A failure never
// crosses the call boundary as an error: it is captured here and the
// rest of the batch still runs.
type Result struct {
	ToolName string
	OK       bool
	Result   any
	Error    string
}

// Execute dispatches each call in order: unknown tool and schema
// failures are reported per call, handler panics excepted (handlers
// return errors). A tool result for call i is always produced before
// call i+1 runs.
func Execute(calls []model.ToolCall, defs []model.ToolDefinition) []Result {
	byName := make(map[string]model.ToolDefinition, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
	}

	results := make([]Result, 0, len(calls))
	for _, call := range calls {
		def, ok := byName[call.Name]
		if !ok {
			results = append(results, Result{ToolName: call.Name, Error: "Tool not found"})
			continue
		}

		if errs := Validate(def.Schema, anyArgs(call.Arguments)); len(errs) > 0 {
			results = append(results, Result{
				ToolName: call.Name,
				Error:    fmt.Sprintf("Schema validation failed: %s", FormatErrors(errs)),
			})
			continue
		}

		value, err := def.Handler(call.Arguments)
		if err != nil {
			results = append(results, Result{ToolName: call.Name, Error: err.Error()})
			continue
		}
		results = append(results, Result{ToolName: call.Name, OK: true, Result: value})
	}

	return results
}

func anyArgs(args map[string]any) any {
	if args == nil {
		return map[string]any{}
	}
	return args
}
