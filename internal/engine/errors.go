package engine

import "fmt"

// ConfigError means the engine cannot run at all: missing credentials or
// store URL. The batch is never attempted.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// FetchError means the remote fetch failed after retries. The batch is
// aborted and the watermark left untouched.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s fetch failed: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ReconcileError is a per-record failure. The isolator catches it, rolls the
// record back, counts it and moves on.
type ReconcileError struct {
	Kind     string
	RemoteID int64
	Title    string
	Err      error
}

func (e *ReconcileError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("failed to reconcile %s %d (%q): %v", e.Kind, e.RemoteID, e.Title, e.Err)
	}
	return fmt.Sprintf("failed to reconcile %s %d: %v", e.Kind, e.RemoteID, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }

// AmbiguityError marks a name collision with a record that already carries a
// different external reference. Policy is skip-and-log, so this error is
// reported but never fails a batch.
type AmbiguityError struct {
	Name        string
	ExistingTag string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("name %q already belongs to a record tagged %s", e.Name, e.ExistingTag)
}
