package core

import (
	"encoding/hex"
	"fmt"
)

// Key identifies an identity for aggregation. Signature is the lowercase hex
// form of the signing-certificate digest, which is also what goes on the wire.
type Key struct {
	Package   string
	Signature string
}

func (k Key) String() string {
	return k.Package + "/" + k.Signature
}

// Identity is an application package paired with its signing signature.
type Identity struct {
	Package   string
	Signature []byte
}

// Key returns the aggregation key for the identity.
func (i Identity) Key() Key {
	return Key{Package: i.Package, Signature: hex.EncodeToString(i.Signature)}
}

// Task is one unit of probing work. Scope is empty for discovery tasks, where
// the probe only checks that the package/signature pair is registered.
type Task struct {
	Key   Key
	Scope string
}

func (t Task) String() string {
	if t.Scope == "" {
		return t.Key.String()
	}
	return fmt.Sprintf("%s %s", t.Key, t.Scope)
}

// Outcome classifies one probe.
type Outcome int

const (
	Rejected Outcome = iota
	Approved
	TransientFailure
)

func (o Outcome) String() string {
	switch o {
	case Approved:
		return "approved"
	case Rejected:
		return "rejected"
	case TransientFailure:
		return "transient_failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is what a Prober reports for a task.
type Result struct {
	Task     Task
	Outcome  Outcome
	Attempts int
	Err      error
}

// Approval is one approved (identity, scope) pair collected by a worker.
type Approval struct {
	Key   Key
	Scope string
}

// Partial is the ordered list of approvals a single worker accumulated.
// Nothing about its order groups approvals by identity.
type Partial []Approval

// Record is the aggregated, per-identity view that survives to output.
type Record struct {
	Package   string
	Signature string
	Token     string
	Scopes    []string
}
