package page

import "github.com/foster-btree/core/pkg/xerrors"

// Pool is a reference in-memory Allocator: a fixed page size, a table of
// live pages keyed by ID, and a free list of released ids available for
// reuse. It is not part of the core's public contract — spec.md explicitly
// scopes buffer-pool management out — but it is enough to drive tests and
// to give an embedder a starting point.
type Pool struct {
	pageSize int
	table    *pageTable
	free     []ID
	next     ID
}

// NewPool returns an empty Pool whose pages are pageSize bytes each.
// pageSize must be at least page.HeaderSize.
func NewPool(pageSize int) *Pool {
	return &Pool{
		pageSize: pageSize,
		table:    newPageTable(),
		next:     1, // 0 is reserved as "no page"
	}
}

// Allocate returns a zeroed page, reusing a released id if one is free.
func (p *Pool) Allocate() (ID, error) {
	var id ID

	if n := len(p.free); n > 0 {
		id = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		id = p.next
		p.next++
	}

	pg := Wrap(id, make([]byte, p.pageSize))
	pg.Reset()
	p.table.Put(id, pg)

	return id, nil
}

// Deref returns the page for id.
func (p *Pool) Deref(id ID) (*Page, error) {
	pg, ok := p.table.Get(id)
	if !ok {
		return nil, xerrors.NotFound(id)
	}

	return pg, nil
}

// Release returns id's page to the free list for reuse.
func (p *Pool) Release(id ID) error {
	if _, ok := p.table.Get(id); !ok {
		return xerrors.NotFound(id)
	}

	p.table.Delete(id)
	p.free = append(p.free, id)

	return nil
}

// PageSize returns the fixed page size this pool allocates.
func (p *Pool) PageSize() int { return p.pageSize }

var _ Allocator = (*Pool)(nil)
