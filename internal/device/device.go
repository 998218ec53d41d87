// Package device declares the abstract file-transfer contract the merge
// orchestrator consumes. Every operation may fail
// with a transport or permission error; the orchestrator wraps those into
// its own error taxonomy. The core never knows whether the adapter
// is backed by a local directory (tests, simulators) or a tunnel over a
// device pairing connection.
package device

import "context"

// Adapter is the device's file-transfer and notification surface. The
// source interface is handle-based (open/read_all/write_all/close); the
// core only ever reads or writes whole files in one shot, so this
// collapses that into ReadAll/WriteAll pairs — the idiomatic Go shape for
// "transfer this blob" without the caller managing a handle's lifetime.
type Adapter interface {
	// List returns the base names of entries directly under path.
	List(ctx context.Context, path string) ([]string, error)
	// MakeDir creates path and any missing parents; it is a no-op if the
	// directory already exists.
	MakeDir(ctx context.Context, path string) error
	// ReadAll returns the full contents of the file at path.
	ReadAll(ctx context.Context, path string) ([]byte, error)
	// WriteAll writes data to path, creating or truncating it.
	WriteAll(ctx context.Context, path string, data []byte) error
	// Remove deletes a single file. It must not fail when path is absent.
	Remove(ctx context.Context, path string) error
	// RemoveTree recursively deletes path and its contents.
	RemoveTree(ctx context.Context, path string) error
	// Rename atomically replaces dst with src, creating dst if needed.
	Rename(ctx context.Context, src, dst string) error
	// NotifySyncFinished tells the device's media service to rescan.
	NotifySyncFinished(ctx context.Context) error
}

// Exists reports whether name (a base name, not a path) appears in the
// listing of dir, treating a failed List as "could not determine" and
// propagating the error.
func Exists(ctx context.Context, a Adapter, dir, name string) (bool, error) {
	entries, err := a.List(ctx, dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e == name {
			return true, nil
		}
	}
	return false, nil
}
