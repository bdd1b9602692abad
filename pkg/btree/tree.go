// Package btree drives a tree of btnode.Node pages: root-to-leaf descent
// that follows foster chains, insertion and deletion with split/merge and
// opportunistic adoption, and lazy range scans.
package btree

import (
	"errors"
	"iter"

	"github.com/foster-btree/core/pkg/btnode"
	"github.com/foster-btree/core/pkg/kvarray"
	"github.com/foster-btree/core/pkg/opt"
	"github.com/foster-btree/core/pkg/page"
	"github.com/foster-btree/core/pkg/xerrors"
)

// childCodec encodes internal-node values: child page ids. It needs no
// type parameter tying it to a particular Tree[K, V], since page.ID is
// concrete regardless of what a tree's leaves store.
var childCodec = kvarray.NewAssignment[page.ID]()

// underflowFraction is the denominator of the "typically 25% of page
// size" underfull threshold spec.md §4.4 names for triggering merge or
// rebalance on deletion.
const underflowFraction = 4

// Tree is the root-to-leaf driver over a tree of btnode.Node pages sharing
// one page.Allocator. It stores no keys or values itself; every mutation
// and lookup is dispatched to the node it resolves to.
type Tree[K, V any] struct {
	alloc page.Allocator
	root  page.ID
	keys  kvarray.KeyEncoder[K]
	vals  kvarray.ValueEncoder[V]

	// minKey/maxKey are the fences of the universe of representable keys.
	// KeyEncoder exposes no notion of -infinity/+infinity for an arbitrary
	// K, so the caller supplies them once, at construction, and every
	// internal node inserted above a leaf (including a freshly grown
	// root) is fenced to this same outer range.
	minKey, maxKey K
}

// New allocates a root page and returns an empty Tree spanning
// [minKey, maxKey). Every key ever Put must fall within that range.
func New[K, V any](alloc page.Allocator, keys kvarray.KeyEncoder[K], vals kvarray.ValueEncoder[V], minKey, maxKey K) (*Tree[K, V], error) {
	rootID, err := alloc.Allocate()
	if err != nil {
		return nil, xerrors.AllocFailure(err)
	}

	rootPage, err := alloc.Deref(rootID)
	if err != nil {
		return nil, xerrors.AllocFailure(err)
	}

	root := btnode.Open[K, V](rootPage, keys, vals)
	root.Initialize(minKey, maxKey, 0)

	return &Tree[K, V]{
		alloc:  alloc,
		root:   rootID,
		keys:   keys,
		vals:   vals,
		minKey: minKey,
		maxKey: maxKey,
	}, nil
}

func (t *Tree[K, V]) openLeaf(pg *page.Page) *btnode.Node[K, V] {
	return btnode.Open[K, V](pg, t.keys, t.vals)
}

func (t *Tree[K, V]) openInternal(pg *page.Page) *btnode.Node[K, page.ID] {
	return btnode.Open[K, page.ID](pg, t.keys, childCodec)
}

// descend walks from the root to the leaf that owns key, following foster
// pointers at every level along the way (spec.md §4.4 "Traversal"). chain
// is every page visited, root first, leaf last — the record opportunistic
// adoption and underflow handling walk back over.
func (t *Tree[K, V]) descend(key K) (leaf *btnode.Node[K, V], leafID page.ID, chain []page.ID, err error) {
	curID := t.root
	chain = []page.ID{curID}

	for {
		pg, derefErr := t.alloc.Deref(curID)
		if derefErr != nil {
			return nil, 0, nil, xerrors.AllocFailure(derefErr)
		}

		if fk, ok := btnode.FosterKeyOf(pg, t.keys); ok && !t.keys.Less(key, fk) {
			curID = pg.FosterPtr()
			chain = append(chain, curID)
			continue
		}

		if pg.Level() == 0 {
			return t.openLeaf(pg), curID, chain, nil
		}

		node := t.openInternal(pg)

		childID, ok := node.Floor(key)
		if !ok {
			return nil, 0, nil, xerrors.ErrKeyOutOfRange
		}

		curID = childID
		chain = append(chain, curID)
	}
}

// adopt walks chain from the leaf end toward the root and, for every
// adjacent pair whose child currently has an un-adopted foster child,
// installs it as a direct separator in the parent — spec.md §4.4's
// opportunistic, best-effort adoption. Adjacent pairs on the same level
// (a foster hop in the chain) are skipped. Failures (e.g. a full parent)
// leave the foster relation in place and are not surfaced.
func (t *Tree[K, V]) adopt(chain []page.ID) {
	for i := len(chain) - 2; i >= 0; i-- {
		parentPage, err := t.alloc.Deref(chain[i])
		if err != nil {
			continue
		}

		childPage, err := t.alloc.Deref(chain[i+1])
		if err != nil || parentPage.Level() != childPage.Level()+1 {
			continue
		}

		fosterKey, ok := btnode.FosterKeyOf(childPage, t.keys)
		if !ok {
			continue
		}

		parent := t.openInternal(parentPage)
		if err := btnode.AdoptFoster(parent, fosterKey, childPage.FosterPtr()); err == nil {
			btnode.ClearFosterOf(childPage)
		}
	}
}

// growRoot installs a fresh root one level above the current one when the
// current root itself becomes a foster parent (it has no parent of its
// own to adopt the foster child into). The new root starts with a single
// separator covering the old root's full low-side range, then immediately
// adopts the old root's foster child as its second child.
func (t *Tree[K, V]) growRoot() error {
	oldRootID := t.root

	oldRootPage, err := t.alloc.Deref(oldRootID)
	if err != nil {
		return xerrors.AllocFailure(err)
	}

	if !oldRootPage.HasFoster() {
		return nil
	}

	newRootID, err := t.alloc.Allocate()
	if err != nil {
		return xerrors.AllocFailure(err)
	}

	newRootPage, err := t.alloc.Deref(newRootID)
	if err != nil {
		return xerrors.AllocFailure(err)
	}

	newRoot := t.openInternal(newRootPage)
	newRoot.Initialize(t.minKey, t.maxKey, oldRootPage.Level()+1)

	if err := newRoot.Insert(t.minKey, oldRootID); err != nil {
		return err
	}

	fosterKey, _ := btnode.FosterKeyOf(oldRootPage, t.keys)
	if err := btnode.AdoptFoster(newRoot, fosterKey, oldRootPage.FosterPtr()); err == nil {
		btnode.ClearFosterOf(oldRootPage)
	}

	t.root = newRootID

	return nil
}

// collapseRoot replaces an internal root with its sole remaining child,
// spec.md §4.4's root collapse, releasing the old root's page.
func (t *Tree[K, V]) collapseRoot() {
	rootPage, err := t.alloc.Deref(t.root)
	if err != nil {
		return
	}

	if rootPage.Level() == 0 {
		return
	}

	root := t.openInternal(rootPage)
	if root.SlotCount() != 1 {
		return
	}

	_, childID := root.Read(0)
	oldRoot := t.root
	t.root = childID

	_ = t.alloc.Release(oldRoot)
}

// Put inserts key/value, splitting (compacting first) the target leaf if
// it is full and growing a new root if the split reached the root.
func (t *Tree[K, V]) Put(key K, value V) error {
	leaf, _, chain, err := t.descend(key)
	if err != nil {
		return err
	}

	err = leaf.Insert(key, value)
	if err == nil {
		t.adopt(chain)
		return t.growRoot()
	}

	if !errors.Is(err, xerrors.ErrNoSpace) {
		return err
	}

	leaf.Compact()
	err = leaf.Insert(key, value)
	if err == nil {
		t.adopt(chain)
		return t.growRoot()
	}

	if !errors.Is(err, xerrors.ErrNoSpace) {
		return err
	}

	siblingID, err := leaf.Split(t.alloc)
	if err != nil {
		return err
	}

	target := leaf
	if !leaf.Contains(key) {
		siblingPage, derefErr := t.alloc.Deref(siblingID)
		if derefErr != nil {
			return xerrors.AllocFailure(derefErr)
		}

		target = t.openLeaf(siblingPage)
	}

	if err := target.Insert(key, value); err != nil {
		return err
	}

	t.adopt(chain)

	return t.growRoot()
}

// Get returns the value stored for key, or xerrors.ErrNotFound.
func (t *Tree[K, V]) Get(key K) (V, error) {
	leaf, _, _, err := t.descend(key)
	if err != nil {
		var zero V
		return zero, err
	}

	v, ok := leaf.Find(key)
	if !ok {
		var zero V
		return zero, xerrors.NotFound(key)
	}

	return v, nil
}

// Remove deletes key, then attempts to merge or rebalance the leaf with
// its right-adjacent sibling if it has become underfull, and collapses
// the root if that merge emptied it down to a single child.
func (t *Tree[K, V]) Remove(key K) error {
	leaf, _, chain, err := t.descend(key)
	if err != nil {
		return err
	}

	if err := leaf.Remove(key); err != nil {
		return err
	}

	t.rebalanceUnderflow(leaf, chain)
	t.collapseRoot()

	return nil
}

func (t *Tree[K, V]) rebalanceUnderflow(leaf *btnode.Node[K, V], chain []page.ID) {
	if len(chain) < 2 {
		return // leaf is the root; nothing to merge with
	}

	pageSize := leaf.Page().Size()
	if leaf.UsedSpace()*underflowFraction >= pageSize {
		return
	}

	parentID := chain[len(chain)-2]

	parentPage, err := t.alloc.Deref(parentID)
	if err != nil {
		return
	}

	parent := t.openInternal(parentPage)

	siblingKey, siblingID, ok := parent.Neighbor(leaf.LowFence())
	if !ok {
		return // rightmost child under this parent: nothing to merge with
	}

	siblingPage, err := t.alloc.Deref(siblingID)
	if err != nil {
		return
	}

	sibling := t.openLeaf(siblingPage)

	if leaf.UsedSpace()+sibling.UsedSpace() <= pageSize {
		if err := leaf.Merge(sibling, t.alloc); err == nil {
			_ = parent.Remove(siblingKey)
		}
		return
	}

	_ = leaf.Rebalance(sibling)
}

// Scan returns a lazy, finite, restartable sequence of (key, value) pairs
// whose key falls in [lo, hi), resuming traversal at each leaf boundary by
// re-descending from the root rather than keeping a live cursor into any
// one page, so a concurrent mutation between yields only ever affects the
// entries already produced.
func (t *Tree[K, V]) Scan(lo, hi opt.Option[K]) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		cursor := t.minKey
		if lo.IsSome() {
			cursor = lo.Unwrap()
		}

		for {
			leaf, _, _, err := t.descend(cursor)
			if err != nil {
				return
			}

			for k, v := range leaf.RangeIter(opt.Some(cursor), hi) {
				if !yield(k, v) {
					return
				}
			}

			next := leaf.EffectiveHigh()

			if hi.IsSome() && !t.keys.Less(next, hi.Unwrap()) {
				return
			}

			if !t.keys.Less(next, t.maxKey) {
				return
			}

			cursor = next
		}
	}
}
