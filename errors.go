package hfsm

import "fmt"

// Code identifies the class of failure behind a *MachineError. The set
// covers every configuration and lifecycle failure this package can
// produce, plus CodeAllocationExhausted, which nothing in this package
// returns but which is kept for a complete taxonomy.
type Code int

const (
	// CodeSuccess is never attached to a returned error; it exists so Code
	// has a defined zero value distinct from "no code at all".
	CodeSuccess Code = iota
	CodeNullArgument
	CodeAllocationExhausted
	CodeNoSuchState
	CodeQueueFailure
	CodeDuplicateTransition
	CodeMachineAlreadyRunning
	CodeStateSizeOverflow
	CodeRootAlreadyDefined
)

func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeNullArgument:
		return "null argument"
	case CodeAllocationExhausted:
		return "allocation exhausted"
	case CodeNoSuchState:
		return "no such state"
	case CodeQueueFailure:
		return "queue failure"
	case CodeDuplicateTransition:
		return "duplicate transition"
	case CodeMachineAlreadyRunning:
		return "machine already running"
	case CodeStateSizeOverflow:
		return "state size overflow"
	case CodeRootAlreadyDefined:
		return "root state already defined"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// MachineError reports a synchronous configuration or lifecycle failure
// from one of Machine's exported methods, tagged with a Code. Compare
// codes with errors.As, not string matching. Err, when set, is the
// lower-level cause Unwrap exposes; most Codes have none.
type MachineError struct {
	Code Code
	Op   string
	Err  error
}

func (e *MachineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hfsm: %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("hfsm: %s: %s", e.Op, e.Code)
}

func (e *MachineError) Unwrap() error { return e.Err }

func newError(code Code, op string) *MachineError {
	return &MachineError{Code: code, Op: op}
}
