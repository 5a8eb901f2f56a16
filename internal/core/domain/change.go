package domain

// ChangeKind is the type of a source change.
type ChangeKind uint8

const (
	// ChangeAdded indicates a file was created.
	ChangeAdded ChangeKind = iota
	// ChangeModified indicates a file was written.
	ChangeModified
	// ChangeRemoved indicates a file was removed or renamed away.
	ChangeRemoved
)

// String returns a lowercase name for the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// ChangeEvent is a single entry of the change feed.
type ChangeEvent struct {
	Path string
	Kind ChangeKind
}

// RestartRequest is a coalesced intent to restart the worker.
// Paths are for operator messaging only; recompilation stays lazy.
type RestartRequest struct {
	Paths  []string
	Manual bool
}
