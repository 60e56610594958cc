// Package condition validates and evaluates rule condition trees against
// event payloads. Evaluation is a pure function and fails closed: a
// missing field, a non-coercible operand or an unknown operator make the
// node false, never an error.
package condition

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/oliveagle/jsonpath"
	"github.com/wmsflow/rulebus/model"
)

const DEFAULT_MAX_DEPTH int = 5

type ValidationError struct {
	Path string
	Msg  string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid condition at %s: %s", e.Path, e.Msg)
}

var validOps = map[string]bool{
	model.OP_EQ:       true,
	model.OP_NE:       true,
	model.OP_GT:       true,
	model.OP_GTE:      true,
	model.OP_LT:       true,
	model.OP_LTE:      true,
	model.OP_IN:       true,
	model.OP_CONTAINS: true,
}

// Validate rejects malformed trees at rule-save time so they never reach
// runtime evaluation. maxDepth bounds group nesting.
func Validate(cond *model.Condition, maxDepth int) error {
	if cond == nil {
		return nil
	}
	if maxDepth <= 0 {
		maxDepth = DEFAULT_MAX_DEPTH
	}
	return validate(*cond, "conditions", maxDepth)
}

func validate(cond model.Condition, path string, depthLeft int) error {
	if depthLeft <= 0 {
		return ValidationError{Path: path, Msg: "condition tree exceeds max depth"}
	}
	if cond.IsGroup() {
		if cond.Operator != model.GROUP_OPERATOR_AND && cond.Operator != model.GROUP_OPERATOR_OR {
			return ValidationError{Path: path, Msg: fmt.Sprintf("unknown group operator %q", cond.Operator)}
		}
		if len(cond.Field) > 0 || len(cond.Op) > 0 {
			return ValidationError{Path: path, Msg: "group node must not carry leaf fields"}
		}
		for i, child := range cond.Conditions {
			if err := validate(child, fmt.Sprintf("%s.conditions[%d]", path, i), depthLeft-1); err != nil {
				return err
			}
		}
		return nil
	}
	if len(cond.Field) == 0 {
		return ValidationError{Path: path, Msg: "leaf condition requires a field"}
	}
	if !validOps[cond.Op] {
		return ValidationError{Path: path, Msg: fmt.Sprintf("unknown operator %q", cond.Op)}
	}
	if len(cond.Conditions) > 0 {
		return ValidationError{Path: path, Msg: "leaf condition must not carry child conditions"}
	}
	return nil
}

// Evaluate runs the tree against the event document. A nil tree matches
// everything. Trees deeper than maxDepth evaluate to false; Validate keeps
// such trees out of the store in the first place.
func Evaluate(cond *model.Condition, doc map[string]any, maxDepth int) bool {
	if cond == nil {
		return true
	}
	if maxDepth <= 0 {
		maxDepth = DEFAULT_MAX_DEPTH
	}
	return evaluate(*cond, doc, maxDepth)
}

func evaluate(cond model.Condition, doc map[string]any, depthLeft int) bool {
	if depthLeft <= 0 {
		return false
	}
	if cond.IsGroup() {
		switch cond.Operator {
		case model.GROUP_OPERATOR_AND:
			for _, child := range cond.Conditions {
				if !evaluate(child, doc, depthLeft-1) {
					return false
				}
			}
			return true
		case model.GROUP_OPERATOR_OR:
			for _, child := range cond.Conditions {
				if evaluate(child, doc, depthLeft-1) {
					return true
				}
			}
			return false
		default:
			return false
		}
	}
	return evaluateLeaf(cond, doc)
}

func evaluateLeaf(cond model.Condition, doc map[string]any) bool {
	actual, defined := resolveField(doc, cond.Field)
	if !defined {
		return false
	}
	switch cond.Op {
	case model.OP_EQ:
		return valueEquals(actual, cond.Value)
	case model.OP_NE:
		return !valueEquals(actual, cond.Value)
	case model.OP_GT, model.OP_GTE, model.OP_LT, model.OP_LTE:
		return compareNumbers(cond.Op, actual, cond.Value)
	case model.OP_IN:
		return valueIn(actual, cond.Value)
	case model.OP_CONTAINS:
		return valueContains(actual, cond.Value)
	}
	return false
}

func resolveField(doc map[string]any, field string) (any, bool) {
	if len(field) == 0 {
		return nil, false
	}
	path := field
	if !strings.HasPrefix(path, "$") {
		path = "$." + path
	}
	value, err := jsonpath.JsonPathLookup(doc, path)
	if err != nil || value == nil {
		return nil, false
	}
	return value, true
}

func valueEquals(a any, b any) bool {
	af, aok := toNumber(a)
	bf, bok := toNumber(b)
	if aok && bok {
		return af == bf
	}
	if aok != bok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func compareNumbers(op string, a any, b any) bool {
	af, aok := toNumber(a)
	bf, bok := toNumber(b)
	if !aok || !bok {
		return false
	}
	switch op {
	case model.OP_GT:
		return af > bf
	case model.OP_GTE:
		return af >= bf
	case model.OP_LT:
		return af < bf
	case model.OP_LTE:
		return af <= bf
	}
	return false
}

// valueIn treats a non-array value as a single-element match set.
func valueIn(actual any, value any) bool {
	set, ok := value.([]any)
	if !ok {
		return valueEquals(actual, value)
	}
	for _, candidate := range set {
		if valueEquals(actual, candidate) {
			return true
		}
	}
	return false
}

func valueContains(actual any, value any) bool {
	switch a := actual.(type) {
	case string:
		needle, ok := value.(string)
		if !ok {
			return false
		}
		return strings.Contains(a, needle)
	case []any:
		for _, element := range a {
			if valueEquals(element, value) {
				return true
			}
		}
	}
	return false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
