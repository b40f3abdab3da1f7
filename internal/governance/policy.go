package governance

import (
	"context"
	"fmt"
	"regexp"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of a tool call to be evaluated.
type Request struct {
	Tool      string
	Arguments string
	ChatID    string
}

// Result contains the outcome of a policy evaluation. A deny is an
// authorization failure: the multi-step executor treats it as fatal and
// skips the remaining steps of a plan.
type Result struct {
	Effect Effect
	Reason string
}

func (r Result) Denied() bool {
	return r.Effect == EffectDeny
}

// PolicyEngine evaluates tool calls against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine is a basic implementation of PolicyEngine: a tool
// deny-list, argument deny-patterns, and an optional chat allow-list.
type DefaultPolicyEngine struct {
	DeniedTools  map[string]bool
	DeniedRegex  []*regexp.Regexp
	AllowedChats map[string]bool // empty means every chat is allowed
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedTools:  make(map[string]bool),
		DeniedRegex:  make([]*regexp.Regexp, 0),
		AllowedChats: make(map[string]bool),
	}
}

func (e *DefaultPolicyEngine) DenyTool(name string) {
	e.DeniedTools[name] = true
}

func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) AllowChat(chatID string) {
	e.AllowedChats[chatID] = true
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if len(e.AllowedChats) > 0 && !e.AllowedChats[req.ChatID] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Chat '%s' is not authorized to use tools", req.ChatID),
		}, nil
	}

	if e.DeniedTools[req.Tool] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Tool '%s' is restricted by system policy", req.Tool),
		}, nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Arguments) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Arguments match restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}
