package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Plan normalization: small models asked for JSON reliably produce a few
// specific malformations. Each repair below targets one of them and is a
// no-op on well-formed input, so normalizing a clean plan returns it
// unchanged apart from default-filled optional fields.

var (
	fenceRe      = regexp.MustCompile("```(?:json|JSON)?")
	ellipsisRe   = regexp.MustCompile(`\.\.\.|…`)
	trailCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	stepsArrRe   = regexp.MustCompile(`"steps"\s*:\s*\[`)
	stepNumKeyRe = regexp.MustCompile(`"stepNumber"\s*:`)
	looseArrRe   = regexp.MustCompile(`("steps"\s*:\s*)\[([^\[\]]*)\]`)
	stepRefRe    = regexp.MustCompile(`(?i)\{\{\s*step[ _]?(\d+)(?:\.(?:output|result))?\s*\}\}`)
)

// NormalizePlan parses a raw model response into a Plan, repairing common
// malformations along the way. The caller maps any error to the fallback
// plan; normalization failure is never surfaced to the user.
func NormalizePlan(raw string) (Plan, error) {
	s := stripCodeFences(raw)
	s, ok := extractObject(s)
	if !ok {
		return Plan{}, fmt.Errorf("no JSON object in planner output")
	}
	s = repairBareSteps(s)
	s = repairTruncation(s)
	s = stripTrailingCommas(s)

	var p Plan
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		// Aggressive second pass: drop every trailing comma and re-apply
		// the bare-steps wrap with a looser, regex-only detector.
		s2 := stripTrailingCommas(repairBareStepsLoose(s))
		if err2 := json.Unmarshal([]byte(s2), &p); err2 != nil {
			return Plan{}, fmt.Errorf("planner output unparseable: %w", err2)
		}
	}
	return fillStepDefaults(p), nil
}

// stripCodeFences removes markdown fence markers around the payload.
func stripCodeFences(raw string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(raw, ""))
}

// extractObject returns the substring from the first '{' to the last '}',
// discarding any prose before or after. When the object is still open at
// the last '}' the output was truncated mid-object, so the tail is kept
// for the truncation repair to finish.
func extractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}
	end := strings.LastIndex(s, "}")
	if end <= start {
		return s[start:], true
	}
	candidate := s[start : end+1]
	if !balanced(candidate) {
		return s[start:], true
	}
	return candidate, true
}

// repairBareSteps fixes a "steps" array whose elements lost their object
// braces, i.e. `"steps": [ "stepNumber": 1, ... , "stepNumber": 2, ... ]`.
// The array body is split at each stepNumber key and every fragment is
// wrapped back into an object.
func repairBareSteps(s string) string {
	loc := stepsArrRe.FindStringIndex(s)
	if loc == nil {
		return s
	}
	bodyStart := loc[1]
	rest := strings.TrimLeft(s[bodyStart:], " \t\r\n")
	if !strings.HasPrefix(rest, `"stepNumber"`) {
		return s // elements are properly wrapped (or the array is empty)
	}

	bodyEnd := findArrayEnd(s, bodyStart)
	wrapped := wrapBareStepFragments(s[bodyStart:bodyEnd])
	return s[:bodyStart] + wrapped + s[bodyEnd:]
}

// findArrayEnd scans from the character after '[' to its matching ']',
// string-aware. Returns len(s) when the array is truncated.
func findArrayEnd(s string, from int) int {
	depth := 1
	inStr := false
	for i := from; i < len(s); i++ {
		c := s[i]
		if inStr {
			if c == '\\' {
				i++
			} else if c == '"' {
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(s)
}

// wrapBareStepFragments splits an array body at each "stepNumber" key and
// wraps the fragments in object braces.
func wrapBareStepFragments(body string) string {
	locs := stepNumKeyRe.FindAllStringIndex(body, -1)
	if len(locs) == 0 {
		return body
	}
	var parts []string
	for i, loc := range locs {
		end := len(body)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		frag := strings.Trim(strings.TrimSpace(body[loc[0]:end]), ",")
		frag = strings.TrimSpace(frag)
		if frag == "" {
			continue
		}
		if !strings.HasPrefix(frag, "{") {
			frag = "{" + frag
		}
		if !strings.HasSuffix(frag, "}") {
			frag = frag + "}"
		}
		parts = append(parts, frag)
	}
	return strings.Join(parts, ", ")
}

// repairBareStepsLoose is the second-pass variant: a single regex pulls
// out a flat steps array and the shared wrap helper fixes its body.
func repairBareStepsLoose(s string) string {
	return looseArrRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := looseArrRe.FindStringSubmatch(m)
		body := sub[2]
		if strings.HasPrefix(strings.TrimSpace(body), "{") {
			return m
		}
		return sub[1] + "[" + wrapBareStepFragments(body) + "]"
	})
}

// repairTruncation detects output cut off mid-object (ellipsis artifacts,
// or no closing brace at the end) and completes it: strip the ellipsis,
// close an open string literal, drop the dangling comma, then append the
// missing closing braces/brackets by balance-counting.
func repairTruncation(s string) string {
	trimmed := strings.TrimSpace(s)
	if !ellipsisRe.MatchString(trimmed) && strings.HasSuffix(trimmed, "}") && balanced(trimmed) {
		return s
	}
	out := strings.TrimSpace(ellipsisRe.ReplaceAllString(trimmed, ""))
	if strings.Count(out, `"`)%2 == 1 {
		out += `"`
	}
	out = strings.TrimRight(out, ", \t\r\n")
	return out + closersFor(out)
}

// balanced reports whether every brace/bracket in s is closed.
func balanced(s string) bool {
	return closersFor(s) == ""
}

// closersFor returns the closing tokens missing from the end of s,
// innermost first. String contents are skipped.
func closersFor(s string) string {
	var stack []byte
	inStr := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			if c == '\\' {
				i++
			} else if c == '"' {
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	var b strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

func stripTrailingCommas(s string) string {
	return trailCommaRe.ReplaceAllString(s, "$1")
}

// fillStepDefaults re-emits every step with stepNumber defaulted to its
// 1-based position, action defaulted to a generic label and parameters
// defaulted to an empty map.
func fillStepDefaults(p Plan) Plan {
	for i := range p.Steps {
		if p.Steps[i].StepNumber <= 0 {
			p.Steps[i].StepNumber = i + 1
		}
		if p.Steps[i].Action == "" {
			p.Steps[i].Action = "step " + strconv.Itoa(i+1)
		}
		if p.Steps[i].Parameters == nil {
			p.Steps[i].Parameters = map[string]any{}
		}
	}
	return p
}
