package runtime

import (
	"context"
	"encoding/json"

	"github.com/kamitools/kami/pkg/types"
)

// Multi-tool pipelines: an ordered sequence of executions where a step
// may take the previous step's output as its input.

// inputFromPrevious is the marker wiring a step to its predecessor.
const inputFromPrevious = "previous"

// PipelineStep is one execution in a pipeline.
type PipelineStep struct {
	Tool types.ToolID `json:"tool"`
	// Input is the explicit JSON input, used when InputFrom is empty.
	Input json.RawMessage `json:"input,omitempty"`
	// InputFrom set to "previous" feeds the prior step's output in.
	InputFrom string `json:"input_from,omitempty"`
}

// PipelineDefinition is an ordered list of steps.
type PipelineDefinition struct {
	Steps []PipelineStep `json:"steps"`
}

// StepResult is the outcome of one pipeline step.
type StepResult struct {
	Tool       types.ToolID `json:"tool"`
	Output     string       `json:"output"`
	Success    bool         `json:"success"`
	DurationMS uint64       `json:"duration_ms"`
}

// PipelineResult aggregates the step outcomes.
type PipelineResult struct {
	Steps   []StepResult `json:"steps"`
	Success bool         `json:"success"`
}

// ExecutePipeline runs the steps sequentially against the orchestrator,
// halting at the first step that fails or errors.
func (o *Orchestrator) ExecutePipeline(ctx context.Context, def PipelineDefinition) (PipelineResult, error) {
	if len(def.Steps) == 0 {
		return PipelineResult{}, types.InvalidInput("pipeline has no steps")
	}

	results := make([]StepResult, 0, len(def.Steps))
	for index, step := range def.Steps {
		input, err := resolveStepInput(step, index, results)
		if err != nil {
			return PipelineResult{Steps: results}, err
		}

		exec, err := o.Execute(ctx, step.Tool, input)
		if err != nil {
			return PipelineResult{Steps: results}, err
		}
		if !exec.Success {
			results = append(results, StepResult{
				Tool:       step.Tool,
				Output:     exec.Content,
				DurationMS: exec.DurationMS,
			})
			return PipelineResult{Steps: results}, types.Internal(
				"pipeline step %d (tool %s) failed: %s", index, step.Tool, exec.Content)
		}

		results = append(results, StepResult{
			Tool:       step.Tool,
			Output:     exec.Content,
			Success:    true,
			DurationMS: exec.DurationMS,
		})
	}

	return PipelineResult{Steps: results, Success: true}, nil
}

func resolveStepInput(step PipelineStep, index int, prior []StepResult) (string, error) {
	if step.InputFrom == inputFromPrevious {
		if index == 0 {
			return "", types.InvalidInput("step 0 uses input_from but is the first step")
		}
		return prior[len(prior)-1].Output, nil
	}
	if step.InputFrom != "" {
		return "", types.InvalidInput("unknown input_from %q", step.InputFrom)
	}
	if len(step.Input) == 0 {
		return "{}", nil
	}
	return string(step.Input), nil
}
