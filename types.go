package batchwriter

// ConflictStrategy defines how the destination table handles a row whose unique key already exists
type ConflictStrategy int

const (
	// ConflictIgnore silently drops rows that collide with an existing key
	ConflictIgnore ConflictStrategy = iota
	// ConflictReplace overwrites the existing row with the new values
	ConflictReplace
)

// String returns the string representation of ConflictStrategy
func (cs ConflictStrategy) String() string {
	switch cs {
	case ConflictIgnore:
		return "IGNORE"
	case ConflictReplace:
		return "REPLACE"
	default:
		return "UNKNOWN"
	}
}

// State is the lifecycle state of a BatchWriter
type State int

const (
	// StateOpen accepts writes; the transaction (if configured) is open
	StateOpen State = iota
	// StateFlushing is transient while a batched statement executes
	StateFlushing
	// StateClosed is reached after a terminal flush
	StateClosed
	// StateAborted is reached when a fail-fast failure rolled the session back
	StateAborted
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateFlushing:
		return "FLUSHING"
	case StateClosed:
		return "CLOSED"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// ErrorMode is the connection's error-reporting mode
type ErrorMode int

const (
	// ErrorModeSilent records statement errors on the connection and reports zero affected rows
	ErrorModeSilent ErrorMode = iota
	// ErrorModeRaise returns statement errors to the caller
	ErrorModeRaise
)

// String returns the string representation of ErrorMode
func (m ErrorMode) String() string {
	switch m {
	case ErrorModeSilent:
		return "SILENT"
	case ErrorModeRaise:
		return "RAISE"
	default:
		return "UNKNOWN"
	}
}
