package condition

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wmsflow/rulebus/model"
)

func leaf(field string, op string, value any) model.Condition {
	return model.Condition{Field: field, Op: op, Value: value}
}

func group(operator string, children ...model.Condition) *model.Condition {
	return &model.Condition{Operator: operator, Conditions: children}
}

func testDoc() map[string]any {
	return map[string]any{
		"entityType": "mrrv",
		"action":     "status_changed",
		"payload": map[string]any{
			"to":     "stored",
			"from":   "submitted",
			"amount": 1500.0,
			"tags":   []any{"urgent", "cold-chain"},
			"remark": "received at dock 4",
		},
	}
}

func TestEvaluateLeaves(t *testing.T) {
	doc := testDoc()
	for scenario, tc := range map[string]struct {
		cond    model.Condition
		matches bool
	}{
		"eq match":                    {leaf("payload.to", model.OP_EQ, "stored"), true},
		"eq mismatch":                 {leaf("payload.to", model.OP_EQ, "cancelled"), false},
		"eq missing field":            {leaf("payload.missing", model.OP_EQ, "stored"), false},
		"ne defined mismatch":         {leaf("payload.to", model.OP_NE, "cancelled"), true},
		"ne missing field":            {leaf("payload.missing", model.OP_NE, "stored"), false},
		"gt numeric":                  {leaf("payload.amount", model.OP_GT, 1000), true},
		"gt equal boundary":           {leaf("payload.amount", model.OP_GT, 1500), false},
		"gte equal boundary":          {leaf("payload.amount", model.OP_GTE, 1500), true},
		"lt numeric":                  {leaf("payload.amount", model.OP_LT, 2000), true},
		"lte numeric":                 {leaf("payload.amount", model.OP_LTE, 1499), false},
		"gt non-coercible operand":    {leaf("payload.to", model.OP_GT, 10), false},
		"gt missing field":            {leaf("payload.missing", model.OP_GT, 10), false},
		"gt string number":            {leaf("payload.amount", model.OP_GT, "1000"), true},
		"in array match":              {leaf("payload.from", model.OP_IN, []any{"submitted", "pending_approval"}), true},
		"in array mismatch":           {leaf("payload.to", model.OP_IN, []any{"submitted", "pending_approval"}), false},
		"in scalar as singleton":      {leaf("payload.to", model.OP_IN, "stored"), true},
		"contains substring":          {leaf("payload.remark", model.OP_CONTAINS, "dock"), true},
		"contains case sensitive":     {leaf("payload.remark", model.OP_CONTAINS, "Dock"), false},
		"contains array element":      {leaf("payload.tags", model.OP_CONTAINS, "urgent"), true},
		"contains array no element":   {leaf("payload.tags", model.OP_CONTAINS, "frozen"), false},
		"contains non-string needle":  {leaf("payload.remark", model.OP_CONTAINS, 4), false},
		"top level field":             {leaf("entityType", model.OP_EQ, "mrrv"), true},
		"unknown op fails closed":     {leaf("payload.to", "matches", "stored"), false},
	} {
		t.Run(scenario, func(t *testing.T) {
			cond := tc.cond
			require.Equal(t, tc.matches, Evaluate(&cond, doc, DEFAULT_MAX_DEPTH))
		})
	}
}

func TestEvaluateGroups(t *testing.T) {
	doc := testDoc()

	require.True(t, Evaluate(group(model.GROUP_OPERATOR_AND), doc, DEFAULT_MAX_DEPTH), "empty AND is vacuously true")
	require.False(t, Evaluate(group(model.GROUP_OPERATOR_OR), doc, DEFAULT_MAX_DEPTH), "empty OR is false")

	and := group(model.GROUP_OPERATOR_AND,
		leaf("payload.to", model.OP_EQ, "stored"),
		leaf("payload.amount", model.OP_GT, 1000),
	)
	require.True(t, Evaluate(and, doc, DEFAULT_MAX_DEPTH))

	and.Conditions = append(and.Conditions, leaf("payload.from", model.OP_EQ, "draft"))
	require.False(t, Evaluate(and, doc, DEFAULT_MAX_DEPTH), "AND is true iff every child is true")

	or := group(model.GROUP_OPERATOR_OR,
		leaf("payload.to", model.OP_EQ, "cancelled"),
		leaf("payload.amount", model.OP_GT, 1000),
	)
	require.True(t, Evaluate(or, doc, DEFAULT_MAX_DEPTH))

	or = group(model.GROUP_OPERATOR_OR,
		leaf("payload.to", model.OP_EQ, "cancelled"),
		leaf("payload.amount", model.OP_GT, 99999),
	)
	require.False(t, Evaluate(or, doc, DEFAULT_MAX_DEPTH))
}

func TestEvaluateNested(t *testing.T) {
	doc := testDoc()
	nested := group(model.GROUP_OPERATOR_AND,
		leaf("entityType", model.OP_EQ, "mrrv"),
		*group(model.GROUP_OPERATOR_OR,
			leaf("payload.to", model.OP_EQ, "stored"),
			leaf("payload.to", model.OP_EQ, "shipped"),
		),
	)
	require.True(t, Evaluate(nested, doc, DEFAULT_MAX_DEPTH))
}

func TestNilConditionMatchesEverything(t *testing.T) {
	require.True(t, Evaluate(nil, testDoc(), DEFAULT_MAX_DEPTH))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(nil, DEFAULT_MAX_DEPTH))
	require.NoError(t, Validate(group(model.GROUP_OPERATOR_AND, leaf("payload.to", model.OP_EQ, "stored")), DEFAULT_MAX_DEPTH))

	err := Validate(group("XOR", leaf("payload.to", model.OP_EQ, "stored")), DEFAULT_MAX_DEPTH)
	require.Error(t, err)
	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "conditions", verr.Path)

	err = Validate(group(model.GROUP_OPERATOR_AND, leaf("", model.OP_EQ, "x")), DEFAULT_MAX_DEPTH)
	require.Error(t, err)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "conditions.conditions[0]", verr.Path)

	err = Validate(&model.Condition{Field: "payload.to", Op: "matches"}, DEFAULT_MAX_DEPTH)
	require.Error(t, err)

	// depth cap: a chain of nested groups one level past the limit
	deep := leaf("payload.to", model.OP_EQ, "stored")
	node := deep
	for i := 0; i < DEFAULT_MAX_DEPTH; i++ {
		node = *group(model.GROUP_OPERATOR_AND, node)
	}
	require.Error(t, Validate(&node, DEFAULT_MAX_DEPTH))
}
