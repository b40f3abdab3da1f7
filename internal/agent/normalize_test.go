package agent

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNormalizePlan_WellFormedUnchanged(t *testing.T) {
	in := Plan{
		IsMultiStep: true,
		Steps: []Step{
			{StepNumber: 1, Tool: "web_search", Action: "find news", Parameters: map[string]any{"query": "latest"}},
			{StepNumber: 2, Action: "summarize the results", Parameters: map[string]any{"input": "{{step 1}}"}},
		},
	}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}

	out, err := NormalizePlan(string(raw))
	if err != nil {
		t.Fatalf("NormalizePlan failed on well-formed input: %v", err)
	}
	if !out.IsMultiStep || len(out.Steps) != 2 {
		t.Fatalf("plan shape changed: %+v", out)
	}
	if out.Steps[0].Tool != "web_search" || out.Steps[0].Parameters["query"] != "latest" {
		t.Errorf("step 1 changed: %+v", out.Steps[0])
	}
	if out.Steps[1].Tool != "" || out.Steps[1].Parameters["input"] != "{{step 1}}" {
		t.Errorf("step 2 changed: %+v", out.Steps[1])
	}
}

func TestNormalizePlan_CodeFencesAndProse(t *testing.T) {
	raw := "Sure! Here is the plan:\n```json\n{\"isMultiStep\": false, \"steps\": []}\n```\nHope that helps."
	out, err := NormalizePlan(raw)
	if err != nil {
		t.Fatalf("NormalizePlan failed: %v", err)
	}
	if out.IsMultiStep {
		t.Errorf("expected single-step plan, got %+v", out)
	}
}

func TestNormalizePlan_BareStepsRepair(t *testing.T) {
	raw := `{"isMultiStep": true, "steps": [ "stepNumber": 1, "tool": "gemini_image", "action": "draw a cat", "stepNumber": 2, "tool": null, "action": "describe it" ]}`

	out, err := NormalizePlan(raw)
	if err != nil {
		t.Fatalf("NormalizePlan failed: %v", err)
	}
	if len(out.Steps) != 2 {
		t.Fatalf("expected exactly 2 steps, got %d", len(out.Steps))
	}
	if out.Steps[0].StepNumber != 1 || out.Steps[0].Tool != "gemini_image" || out.Steps[0].Action != "draw a cat" {
		t.Errorf("step 1 wrong: %+v", out.Steps[0])
	}
	if out.Steps[1].StepNumber != 2 || out.Steps[1].Tool != "" || out.Steps[1].Action != "describe it" {
		t.Errorf("step 2 wrong: %+v", out.Steps[1])
	}
}

func TestNormalizePlan_TruncationRepair(t *testing.T) {
	// Missing the final closing braces, with a trailing ellipsis artifact.
	raw := `{"isMultiStep": true, "steps": [{"stepNumber": 1, "action": "search"}, {"stepNumber": 2, "action": "summarize"...`

	out, err := NormalizePlan(raw)
	if err != nil {
		t.Fatalf("NormalizePlan failed: %v", err)
	}
	if !out.IsMultiStep {
		t.Error("isMultiStep lost during truncation repair")
	}
	if len(out.Steps) != 2 {
		t.Fatalf("expected 2 steps preserved, got %d", len(out.Steps))
	}
	if out.Steps[1].Action != "summarize" {
		t.Errorf("step 2 action wrong: %q", out.Steps[1].Action)
	}
}

func TestNormalizePlan_TrailingCommas(t *testing.T) {
	raw := `{"isMultiStep": true, "steps": [{"stepNumber": 1, "action": "a",}, {"stepNumber": 2, "action": "b",},],}`
	out, err := NormalizePlan(raw)
	if err != nil {
		t.Fatalf("NormalizePlan failed: %v", err)
	}
	if len(out.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(out.Steps))
	}
}

func TestNormalizePlan_DefaultFilling(t *testing.T) {
	raw := `{"isMultiStep": true, "steps": [{"tool": "web_search"}, {"action": "write it up"}]}`
	out, err := NormalizePlan(raw)
	if err != nil {
		t.Fatalf("NormalizePlan failed: %v", err)
	}
	if out.Steps[0].StepNumber != 1 || out.Steps[1].StepNumber != 2 {
		t.Errorf("stepNumber defaults not applied: %+v", out.Steps)
	}
	if out.Steps[0].Action == "" {
		t.Error("action default not applied")
	}
	for i, st := range out.Steps {
		if st.Parameters == nil {
			t.Errorf("step %d parameters not defaulted", i+1)
		}
	}
}

func TestNormalizePlan_Unrecoverable(t *testing.T) {
	for _, raw := range []string{
		"",
		"I cannot produce a plan for that.",
		"{ this is not even close to json ]",
	} {
		if _, err := NormalizePlan(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestRepairStages(t *testing.T) {
	if got := stripCodeFences("```json\n{\"a\":1}\n```"); got != `{"a":1}` {
		t.Errorf("stripCodeFences = %q", got)
	}

	got, ok := extractObject(`prose before {"a": 1} prose after`)
	if !ok || got != `{"a": 1}` {
		t.Errorf("extractObject = %q, %v", got, ok)
	}

	if got := stripTrailingCommas(`{"a": [1, 2,], }`); strings.Contains(got, ",]") || strings.Contains(got, ", }") {
		t.Errorf("stripTrailingCommas = %q", got)
	}

	if got := closersFor(`{"a": [{"b": 1}`); got != "]}" {
		t.Errorf("closersFor = %q", got)
	}
	if got := closersFor(`{"a": "with ] and } inside"`); got != "}" {
		t.Errorf("closersFor ignores string contents: %q", got)
	}
}
