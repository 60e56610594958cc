package action

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
)

// scriptAction runs a javascript expression with $ bound to the event
// document and merges the mutated $ back, so later actions of the same
// rule can resolve derived fields.
type scriptAction struct{}

func NewScriptAction() Handler {
	return &scriptAction{}
}

func (a *scriptAction) Type() string {
	return TYPE_SCRIPT
}

func (a *scriptAction) Validate(params map[string]any) error {
	if len(stringParam(params, "expression")) == 0 {
		return ConfigError{ActionType: a.Type(), Msg: "param expression is required"}
	}
	return nil
}

func (a *scriptAction) Execute(ctx context.Context, params map[string]any, ec *ExecutionContext) error {
	data, err := json.Marshal(ec.Doc)
	if err != nil {
		return err
	}
	expression := fmt.Sprintf("var $ = %s;\n", data) + stringParam(params, "expression")
	vm := goja.New()
	if _, err := vm.RunString(expression); err != nil {
		return fmt.Errorf("error executing javascript %w", err)
	}
	val, err := vm.RunString("$")
	if err != nil {
		return fmt.Errorf("error executing javascript %w", err)
	}
	res, err := json.Marshal(val.Export())
	if err != nil {
		return err
	}
	var output map[string]any
	if err := json.Unmarshal(res, &output); err != nil {
		return err
	}
	for k, v := range output {
		ec.Doc[k] = v
	}
	return nil
}
