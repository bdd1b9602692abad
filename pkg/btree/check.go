package btree

import (
	"fmt"

	"github.com/foster-btree/core/pkg/page"
)

// Check walks every node reachable from the root — through child pointers
// and foster pointers alike — and verifies spec.md §8 invariants 1
// (sorted directory), 2 (fence containment), and 4 (a foster key equals
// its foster child's low fence and lies strictly within the parent's own
// fences), returning a descriptive error on the first violation found.
// Invariant 3 (PMNK consistency) is guaranteed by construction in
// kvarray.Array's insertion path and is not independently re-verified
// here. Check never panics; it is meant to run in ordinary builds, e.g.
// from a test harness or fuzzer after a stress sequence.
func (t *Tree[K, V]) Check() error {
	return t.checkSubtree(t.root)
}

func (t *Tree[K, V]) checkSubtree(id page.ID) error {
	pg, err := t.alloc.Deref(id)
	if err != nil {
		return fmt.Errorf("btree: page %d: %w", id, err)
	}

	if pg.Level() == 0 {
		return t.checkLeaf(pg, id)
	}

	return t.checkInternal(pg, id)
}

func (t *Tree[K, V]) checkLeaf(pg *page.Page, id page.ID) error {
	leaf := t.openLeaf(pg)
	count := leaf.SlotCount()

	var prev K
	for i := 0; i < count; i++ {
		k, _ := leaf.Read(i)

		if !leaf.Contains(k) {
			return fmt.Errorf("btree: page %d: key %v outside fence range [%v, %v)", id, k, leaf.LowFence(), leaf.EffectiveHigh())
		}

		if i > 0 && !t.keys.Less(prev, k) {
			return fmt.Errorf("btree: page %d: slot %d key %v does not strictly follow %v", id, i, k, prev)
		}

		prev = k
	}

	if !leaf.HasFoster() {
		return nil
	}

	if err := t.checkFosterKey(leaf.LowFence(), leaf.HighFence(), leaf.FosterKey, id); err != nil {
		return err
	}

	childPage, err := t.alloc.Deref(leaf.FosterChild())
	if err != nil {
		return fmt.Errorf("btree: page %d: foster child: %w", id, err)
	}

	fosterKey, _ := leaf.FosterKey()
	child := t.openLeaf(childPage)
	if t.keys.Less(fosterKey, child.LowFence()) || t.keys.Less(child.LowFence(), fosterKey) {
		return fmt.Errorf("btree: page %d: foster key %v does not equal foster child %d's low fence %v", id, fosterKey, leaf.FosterChild(), child.LowFence())
	}

	return t.checkSubtree(leaf.FosterChild())
}

func (t *Tree[K, V]) checkInternal(pg *page.Page, id page.ID) error {
	node := t.openInternal(pg)
	count := node.SlotCount()

	var prev K
	for i := 0; i < count; i++ {
		k, childID := node.Read(i)

		if !node.Contains(k) {
			return fmt.Errorf("btree: page %d: separator %v outside fence range [%v, %v)", id, k, node.LowFence(), node.EffectiveHigh())
		}

		if i > 0 && !t.keys.Less(prev, k) {
			return fmt.Errorf("btree: page %d: slot %d separator %v does not strictly follow %v", id, i, k, prev)
		}

		prev = k

		if err := t.checkSubtree(childID); err != nil {
			return err
		}
	}

	if !node.HasFoster() {
		return nil
	}

	if err := t.checkFosterKey(node.LowFence(), node.HighFence(), node.FosterKey, id); err != nil {
		return err
	}

	return t.checkSubtree(node.FosterChild())
}

// checkFosterKey verifies invariant 4's range clause: the foster key must
// lie strictly within (low_fence, high_fence).
func (t *Tree[K, V]) checkFosterKey(low, high K, fosterKey func() (K, bool), id page.ID) error {
	fk, _ := fosterKey()

	if !t.keys.Less(low, fk) || !t.keys.Less(fk, high) {
		return fmt.Errorf("btree: page %d: foster key %v not within (%v, %v)", id, fk, low, high)
	}

	return nil
}
