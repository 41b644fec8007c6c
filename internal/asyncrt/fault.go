package asyncrt

import "fmt"

// FaultCode identifies a fatal scheduler condition.
type FaultCode int

// Stable fault codes - do not change values.
const (
	FaultTaskTableFull   FaultCode = 1001 // KP1001: task table cannot grow
	FaultTaskIDExhausted FaultCode = 1002 // KP1002: task identity space exhausted
	FaultInvariant       FaultCode = 1003 // KP1003: scheduler invariant violated
	FaultReentrantRun    FaultCode = 1004 // KP1004: run loop entered while running
	FaultNilFuture       FaultCode = 1005 // KP1005: spawn of a nil computation
)

// String returns the code as "KP1001" format.
func (c FaultCode) String() string {
	return fmt.Sprintf("KP%d", c)
}

// Fault is the panic value raised for resource exhaustion and invariant
// violations. It is never returned as an error: a scheduler that raised a
// Fault cannot be trusted to keep servicing tasks.
type Fault struct {
	Code    FaultCode
	Message string
	TaskID  TaskID
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.TaskID != 0 {
		return fmt.Sprintf("fault %s: %s (task %d)", f.Code, f.Message, f.TaskID)
	}
	return fmt.Sprintf("fault %s: %s", f.Code, f.Message)
}

func raise(code FaultCode, id TaskID, format string, args ...any) {
	panic(&Fault{Code: code, Message: fmt.Sprintf(format, args...), TaskID: id})
}
