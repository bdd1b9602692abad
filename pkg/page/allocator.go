package page

// Allocator is the external page allocator the core consumes. It is the
// one collaborator the core never implements for production use — a
// surrounding buffer-pool/storage engine supplies it. Pages are borrowed
// for the duration of one operation and never retained across operation
// boundaries; the core calls Release from btnode.Node.Merge and from the
// tree's root collapse.
type Allocator interface {
	// Allocate returns a zeroed fixed-size page and its id, or an error if
	// the allocator has no space left.
	Allocate() (ID, error)

	// Deref borrows the page bytes for id. The returned *Page is only
	// valid until the next call that might invalidate it (Release, or an
	// allocator-specific eviction); the core never holds one across
	// operation boundaries.
	Deref(id ID) (*Page, error)

	// Release returns the page to the allocator. The core calls this from
	// Node.Merge, after copying out everything it needs, and when it
	// replaces an internal root with its sole child.
	Release(id ID) error
}
