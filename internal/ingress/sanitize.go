package ingress

import (
	"fmt"
	"strings"
)

// forbiddenTerms is the fixed rewrite list applied to every tool
// argument string value, grounded on hardening.rs's sanitizer.
var forbiddenTerms = map[string]string{
	"rm -rf /": "rm -rf ./",
}

// sanitizeGrepArgs strips the mutually-exclusive -C property when -A and
// -B are both present and positive, mirroring the schema patch applied
// again at projection time (§4.5 step 4) but here applied to the actual
// call arguments a model already emitted.
func sanitizeGrepArgs(name string, args map[string]any) map[string]any {
	if name != "grep" {
		return args
	}
	a, aok := numericPositive(args["-A"])
	b, bok := numericPositive(args["-B"])
	if aok && bok && a && b {
		delete(args, "-C")
	}
	return args
}

func numericPositive(v any) (bool, bool) {
	switch n := v.(type) {
	case float64:
		return n > 0, true
	case int:
		return n > 0, true
	}
	return false, false
}

// ensurePlanTitle guarantees create_plan arguments carry a leading H1
// derived from the "name" field, per §4.4 step 4.
func ensurePlanTitle(name string, args map[string]any) map[string]any {
	if name != "create_plan" {
		return args
	}
	plan, _ := args["plan"].(string)
	title, _ := args["name"].(string)
	if title == "" {
		title = "Implementation Plan"
		args["name"] = title
	}
	if !strings.HasPrefix(strings.TrimSpace(plan), "# ") {
		args["plan"] = fmt.Sprintf("# %s\n\n%s", title, plan)
	}
	return args
}

// rewriteForbiddenTerms rewrites every string value in args (shallow —
// top-level string fields only) that matches a forbidden term.
func rewriteForbiddenTerms(args map[string]any) map[string]any {
	for k, v := range args {
		if s, ok := v.(string); ok {
			if repl, found := forbiddenTerms[s]; found {
				args[k] = repl
			}
		}
	}
	return args
}

// SanitizeToolArgs applies every tool-name-specific sanitizer in order.
func SanitizeToolArgs(name string, args map[string]any) map[string]any {
	args = sanitizeGrepArgs(name, args)
	args = ensurePlanTitle(name, args)
	args = rewriteForbiddenTerms(args)
	return args
}
