package btree_test

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/foster-btree/core/pkg/btree"
	"github.com/foster-btree/core/pkg/kvarray"
	"github.com/foster-btree/core/pkg/opt"
	"github.com/foster-btree/core/pkg/page"
	"github.com/foster-btree/core/pkg/slotarray"
	"github.com/foster-btree/core/pkg/xerrors"
)

func newScalarTree(t *testing.T, pageSize int) (*btree.Tree[uint32, []byte], *page.Pool) {
	t.Helper()
	pool := page.NewPool(pageSize)
	tree, err := btree.New[uint32, []byte](pool, kvarray.NewAssignment[uint32](), kvarray.NewInline(slotarray.Width4), 0, 1<<31)
	So(err, ShouldBeNil)
	return tree, pool
}

// TestTreeBasicInsertAndLookup covers scenario S1: put a handful of keys,
// confirm every one comes back, and a key never inserted reports not-found.
func TestTreeBasicInsertAndLookup(t *testing.T) {
	Convey("Given a fresh tree", t, func() {
		tree, _ := newScalarTree(t, 512)

		Convey("When putting several keys", func() {
			for _, k := range []uint32{5, 1, 9, 3, 7} {
				So(tree.Put(k, []byte{byte(k)}), ShouldBeNil)
			}

			Convey("Then every key resolves to its value", func() {
				for _, k := range []uint32{5, 1, 9, 3, 7} {
					v, err := tree.Get(k)
					So(err, ShouldBeNil)
					So(v, ShouldResemble, []byte{byte(k)})
				}
			})

			Convey("Then a key never inserted reports not-found", func() {
				_, err := tree.Get(42)
				So(errors.Is(err, xerrors.ErrNotFound), ShouldBeTrue)
			})

			Convey("Then the tree passes consistency checking", func() {
				So(tree.Check(), ShouldBeNil)
			})
		})
	})
}

// TestTreeDuplicateRejected covers scenario S2: re-putting an existing key
// without removing it first is rejected.
func TestTreeDuplicateRejected(t *testing.T) {
	Convey("Given a tree with one key", t, func() {
		tree, _ := newScalarTree(t, 512)
		So(tree.Put(10, []byte("first")), ShouldBeNil)

		Convey("When putting the same key again", func() {
			err := tree.Put(10, []byte("second"))

			Convey("Then it reports duplicate", func() {
				So(errors.Is(err, xerrors.ErrDuplicate), ShouldBeTrue)
			})

			Convey("Then the original value is untouched", func() {
				v, err := tree.Get(10)
				So(err, ShouldBeNil)
				So(string(v), ShouldEqual, "first")
			})
		})
	})
}

// TestTreeSplitsUnderPressure covers scenario S3: enough inserts into a
// small-page tree to force leaf splits and root growth, while every key
// stays reachable and the tree remains structurally consistent.
func TestTreeSplitsUnderPressure(t *testing.T) {
	Convey("Given a tree backed by small, 128-byte pages", t, func() {
		tree, _ := newScalarTree(t, 128)

		Convey("When putting enough keys to force repeated splits", func() {
			var keys []uint32
			for i := uint32(0); i < 60; i++ {
				k := (i * 37) % 997
				keys = append(keys, k)
				So(tree.Put(k, []byte("payload bytes for this key")), ShouldBeNil)
			}

			Convey("Then every key still resolves", func() {
				for _, k := range keys {
					_, err := tree.Get(k)
					So(err, ShouldBeNil)
				}
			})

			Convey("Then the tree passes consistency checking", func() {
				So(tree.Check(), ShouldBeNil)
			})
		})
	})
}

// TestTreePMNKCollisions covers scenario S4: keys whose 2-byte PMNK
// prefixes collide still order and resolve correctly via the full-key
// tiebreak in kvarray.Array.locate.
func TestTreePMNKCollisions(t *testing.T) {
	Convey("Given a tree whose keys are byte strings with a narrow 2-byte PMNK", t, func() {
		pool := page.NewPool(256)
		tree, err := btree.New[[]byte, uint32](pool, kvarray.NewInline(slotarray.Width2), kvarray.NewAssignment[uint32](), []byte{}, []byte{0xff, 0xff, 0xff, 0xff})
		So(err, ShouldBeNil)

		Convey("When putting keys that share a PMNK prefix", func() {
			collidingKeys := [][]byte{
				{0x00, 0x01, 0x00},
				{0x00, 0x01, 0x01},
				{0x00, 0x01, 0x02},
			}
			for i, k := range collidingKeys {
				So(tree.Put(k, uint32(i)), ShouldBeNil)
			}

			Convey("Then every colliding key still resolves to its own value", func() {
				for i, k := range collidingKeys {
					v, err := tree.Get(k)
					So(err, ShouldBeNil)
					So(v, ShouldEqual, uint32(i))
				}
			})
		})
	})
}

// TestTreeRangeScan covers scenario S5: a bounded scan over variable-length
// keys returns exactly the keys in range, in order, and nothing outside it.
func TestTreeRangeScan(t *testing.T) {
	Convey("Given a tree with keys spread across a wide range", t, func() {
		tree, _ := newScalarTree(t, 256)
		for _, k := range []uint32{10, 20, 30, 40, 50, 60, 70} {
			So(tree.Put(k, []byte{byte(k)}), ShouldBeNil)
		}

		Convey("When scanning a bounded sub-range", func() {
			var got []uint32
			for k := range tree.Scan(opt.Some(uint32(20)), opt.Some(uint32(60))) {
				got = append(got, k)
			}

			Convey("Then only keys within [lo, hi) come back, in order", func() {
				So(got, ShouldResemble, []uint32{20, 30, 40, 50})
			})
		})

		Convey("When scanning with no bounds", func() {
			var got []uint32
			for k := range tree.Scan(opt.None[uint32](), opt.None[uint32]()) {
				got = append(got, k)
			}

			Convey("Then every key comes back in order", func() {
				So(got, ShouldResemble, []uint32{10, 20, 30, 40, 50, 60, 70})
			})
		})
	})
}

// TestTreeDeleteThenReinsert covers scenario S6: removing a key frees its
// slot for a later reinsertion, and repeated delete/reinsert cycles drive
// merges and rebalances without corrupting the tree.
func TestTreeDeleteThenReinsert(t *testing.T) {
	Convey("Given a small-page tree with many keys", t, func() {
		tree, _ := newScalarTree(t, 128)
		var keys []uint32
		for i := uint32(0); i < 40; i++ {
			k := i * 3
			keys = append(keys, k)
			So(tree.Put(k, []byte("some value bytes")), ShouldBeNil)
		}

		Convey("When removing every other key", func() {
			var removed, kept []uint32
			for i, k := range keys {
				if i%2 == 0 {
					So(tree.Remove(k), ShouldBeNil)
					removed = append(removed, k)
				} else {
					kept = append(kept, k)
				}
			}

			Convey("Then removed keys are gone and kept keys remain", func() {
				for _, k := range removed {
					_, err := tree.Get(k)
					So(errors.Is(err, xerrors.ErrNotFound), ShouldBeTrue)
				}
				for _, k := range kept {
					_, err := tree.Get(k)
					So(err, ShouldBeNil)
				}
			})

			Convey("Then the tree passes consistency checking", func() {
				So(tree.Check(), ShouldBeNil)
			})

			Convey("When the removed keys are reinserted", func() {
				for _, k := range removed {
					So(tree.Put(k, []byte("reinserted")), ShouldBeNil)
				}

				Convey("Then every key resolves again", func() {
					for _, k := range keys {
						_, err := tree.Get(k)
						So(err, ShouldBeNil)
					}
				})

				Convey("Then the tree still passes consistency checking", func() {
					So(tree.Check(), ShouldBeNil)
				})
			})
		})
	})
}

// TestTreeRemoveNotFound reports not-found rather than panicking or
// corrupting the tree.
func TestTreeRemoveNotFound(t *testing.T) {
	Convey("Given an empty tree", t, func() {
		tree, _ := newScalarTree(t, 256)

		Convey("When removing a key that was never inserted", func() {
			err := tree.Remove(123)

			Convey("Then it reports not-found", func() {
				So(errors.Is(err, xerrors.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}
