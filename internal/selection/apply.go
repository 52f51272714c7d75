package selection

import (
	"errors"
	"fmt"
)

// Operation kinds accepted by Apply.
const (
	OpSetLevel   = "setLevel"
	OpToggleLeaf = "toggleFinalCategory"
	OpAddRow     = "addRow"
	OpRemoveRow  = "removeRow"
	OpFinalize   = "finalize"
	OpBlank      = "blank"
)

// ErrUnknownOperation is returned by Apply for an unrecognized kind.
var ErrUnknownOperation = errors.New("unknown selection operation")

// Operation is a serialized engine call.
type Operation struct {
	Kind       string   `json:"kind"`
	Index      int      `json:"index"`
	Level      int      `json:"level"`
	Value      string   `json:"value"`
	Dimension  string   `json:"dimension"`
	Prefix     []string `json:"prefix"`
	CategoryID string   `json:"categoryId"`
}

// Apply runs op against sels and returns the next list. A loaded list whose
// group members are out of taxonomy order is reordered first.
func (e *Engine) Apply(sels []Selection, op Operation) ([]Selection, error) {
	sels = e.canonical(cloneAll(sels))
	switch op.Kind {
	case OpSetLevel:
		return e.SetLevel(sels, op.Index, op.Level, op.Value), nil
	case OpToggleLeaf:
		return e.ToggleFinalCategory(sels, op.Prefix, op.CategoryID), nil
	case OpAddRow:
		return e.AddRow(sels, op.Dimension), nil
	case OpRemoveRow:
		return e.RemoveRow(sels, op.Index), nil
	case OpFinalize:
		return e.Finalize(sels), nil
	case OpBlank:
		return e.Blank(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op.Kind)
	}
}
