package status

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
)

// State is the classification of a raw CloudFormation stack status.
type State int

const (
	// InProgress means the current operation has not finished yet.
	InProgress State = iota
	// Success means the operation finished and the stack is healthy.
	Success
	// Failure means the operation finished badly, including completed rollbacks.
	Failure
)

func (s State) String() string {
	switch s {
	case Success:
		return "SUCCESS"
	case Failure:
		return "FAILURE"
	default:
		return "IN_PROGRESS"
	}
}

// MarshalText renders the state name, so JSON output carries "SUCCESS"
// rather than an enum ordinal.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further events will follow for the operation.
func (s State) Terminal() bool {
	return s != InProgress
}

// Classify maps a raw stack status string to a State.
//
// The failure cases must be checked first: ROLLBACK_COMPLETE and
// UPDATE_ROLLBACK_COMPLETE end in _COMPLETE but mean the operation failed
// and was rolled back. Unrecognized strings classify as InProgress since
// the backend's status vocabulary can grow.
func Classify(raw string) State {
	switch {
	case strings.HasSuffix(raw, "_FAILED"),
		raw == "ROLLBACK_COMPLETE",
		raw == "UPDATE_ROLLBACK_COMPLETE":
		return Failure
	case strings.HasSuffix(raw, "_COMPLETE"):
		return Success
	default:
		return InProgress
	}
}

// ActiveStatuses returns every stack status the SDK knows about except
// DELETE_COMPLETE. Existence checks filter on this list so fully deleted
// stacks are not paged through on every ListStacks call.
func ActiveStatuses() []types.StackStatus {
	all := types.StackStatus("").Values()
	active := make([]types.StackStatus, 0, len(all))
	for _, s := range all {
		if s != types.StackStatusDeleteComplete {
			active = append(active, s)
		}
	}
	return active
}
