package trace

import "context"

// Filter narrows a List call, matching spec.md §4.7's
// GET /api/traces query parameters.
type Filter struct {
	Status           Status
	HasErrors        *bool
	HasSandboxBlocks *bool
	Search           string
	Limit            int
	Offset           int
}

// Store persists TraceRecords and supports the list/filter operations
// spec.md §4.7's trace-retrieval endpoints need. Put is called on every Log
// so implementations must make repeated whole-document writes cheap (the
// file store rewrites the document write-temp-then-rename each time).
type Store interface {
	// Put persists (or overwrites) the current snapshot of a trace record.
	Put(r Record) error
	// Get retrieves a single trace by ID.
	Get(ctx context.Context, traceID string) (Record, error)
	// List returns trace records matching filter, newest first.
	List(ctx context.Context, filter Filter) ([]Record, error)
}
