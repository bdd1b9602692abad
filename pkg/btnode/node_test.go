package btnode_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/foster-btree/core/pkg/btnode"
	"github.com/foster-btree/core/pkg/kvarray"
	"github.com/foster-btree/core/pkg/opt"
	"github.com/foster-btree/core/pkg/page"
	"github.com/foster-btree/core/pkg/slotarray"
)

func newLeaf(size int, low, high uint32) *btnode.Node[uint32, []byte] {
	pg := page.Wrap(1, make([]byte, size))
	n := btnode.Open[uint32, []byte](pg, kvarray.NewAssignment[uint32](), kvarray.NewInline(slotarray.Width4))
	n.Initialize(low, high, 0)
	return n
}

func TestNodeFenceChecking(t *testing.T) {
	Convey("Given a leaf fenced to [10, 100)", t, func() {
		n := newLeaf(256, 10, 100)

		Convey("When inserting a key inside the range", func() {
			err := n.Insert(50, []byte("fifty"))

			Convey("Then it succeeds", func() {
				So(err, ShouldBeNil)
				v, ok := n.Find(50)
				So(ok, ShouldBeTrue)
				So(string(v), ShouldEqual, "fifty")
			})
		})

		Convey("When inserting a key below the low fence", func() {
			err := n.Insert(5, []byte("five"))

			Convey("Then it reports key-out-of-range", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When inserting a key at or above the high fence", func() {
			err := n.Insert(100, []byte("hundred"))

			Convey("Then it reports key-out-of-range", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When removing a key that is not present", func() {
			err := n.Remove(50)

			Convey("Then it reports not-found", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestNodeSplit(t *testing.T) {
	Convey("Given a leaf with several entries and a live allocator", t, func() {
		pool := page.NewPool(512)
		n := newLeaf(512, 0, 1000)

		for _, k := range []uint32{10, 20, 30, 40, 50, 60} {
			So(n.Insert(k, []byte("some padding bytes")), ShouldBeNil)
		}

		Convey("When splitting", func() {
			siblingID, err := n.Split(pool)
			So(err, ShouldBeNil)

			siblingPage, derefErr := pool.Deref(siblingID)
			So(derefErr, ShouldBeNil)
			sibling := btnode.Open[uint32, []byte](siblingPage, kvarray.NewAssignment[uint32](), kvarray.NewInline(slotarray.Width4))

			Convey("Then the original node gains a foster child", func() {
				So(n.HasFoster(), ShouldBeTrue)
				So(n.FosterChild(), ShouldEqual, siblingID)
			})

			Convey("Then every key still resolves, on one side or the other", func() {
				for _, k := range []uint32{10, 20, 30, 40, 50, 60} {
					_, onLeft := n.Find(k)
					_, onRight := sibling.Find(k)
					So(onLeft || onRight, ShouldBeTrue)
				}
			})

			Convey("Then the sibling's low fence is the foster key and its high fence is the original high fence", func() {
				fk, ok := n.FosterKey()
				So(ok, ShouldBeTrue)
				So(sibling.LowFence(), ShouldEqual, fk)
				So(sibling.HighFence(), ShouldEqual, uint32(1000))
			})

			Convey("Then no key the original node kept is >= the foster key", func() {
				fk, _ := n.FosterKey()
				for i := 0; i < n.SlotCount(); i++ {
					k, _ := n.Read(i)
					So(k < fk, ShouldBeTrue)
				}
			})
		})
	})
}

func TestNodeMergeAndAdoptFoster(t *testing.T) {
	Convey("Given a split leaf and the internal node that should adopt its foster child", t, func() {
		pool := page.NewPool(512)
		leaf := newLeaf(512, 0, 1000)
		for _, k := range []uint32{10, 20, 30, 40, 50, 60} {
			So(leaf.Insert(k, []byte("some padding bytes")), ShouldBeNil)
		}

		siblingID, err := leaf.Split(pool)
		So(err, ShouldBeNil)
		fosterKey, _ := leaf.FosterKey()

		parentPage := page.Wrap(999, make([]byte, 512))
		parent := btnode.Open[uint32, page.ID](parentPage, kvarray.NewAssignment[uint32](), kvarray.NewAssignment[page.ID]())
		parent.Initialize(0, 1000, 1)
		So(parent.Insert(0, leaf.ID()), ShouldBeNil)

		Convey("When the parent adopts the foster child", func() {
			err := btnode.AdoptFoster(parent, fosterKey, siblingID)
			So(err, ShouldBeNil)
			leaf.ClearFoster()

			Convey("Then the parent has a direct separator for it", func() {
				v, ok := parent.Find(fosterKey)
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, siblingID)
			})

			Convey("Then the leaf no longer reports a foster child", func() {
				So(leaf.HasFoster(), ShouldBeFalse)
			})

			Convey("Then adopting again is a no-op", func() {
				err := btnode.AdoptFoster(parent, fosterKey, siblingID)
				So(err, ShouldBeNil)
			})
		})

		Convey("When merging the sibling back into the leaf", func() {
			siblingPage, _ := pool.Deref(siblingID)
			sibling := btnode.Open[uint32, []byte](siblingPage, kvarray.NewAssignment[uint32](), kvarray.NewInline(slotarray.Width4))

			err := leaf.Merge(sibling, pool)
			So(err, ShouldBeNil)

			Convey("Then every original key is reachable from the leaf alone", func() {
				for _, k := range []uint32{10, 20, 30, 40, 50, 60} {
					_, ok := leaf.Find(k)
					So(ok, ShouldBeTrue)
				}
			})

			Convey("Then the leaf's foster pointer is cleared and its high fence covers the sibling's range", func() {
				So(leaf.HasFoster(), ShouldBeFalse)
				So(leaf.HighFence(), ShouldEqual, uint32(1000))
			})

			Convey("Then the sibling's page has been released back to the pool", func() {
				_, derefErr := pool.Deref(siblingID)
				So(derefErr, ShouldNotBeNil)
			})
		})
	})
}

func TestNodeRebalance(t *testing.T) {
	Convey("Given two adjacent nodes with lopsided contents", t, func() {
		left := newLeaf(512, 0, 50)
		for _, k := range []uint32{1, 2, 3, 4, 5, 6, 7, 8} {
			So(left.Insert(k, []byte("padding bytes for this entry")), ShouldBeNil)
		}

		right := newLeaf(512, 50, 100)
		So(right.Insert(90, []byte("x")), ShouldBeNil)

		Convey("When rebalancing", func() {
			err := left.Rebalance(right)
			So(err, ShouldBeNil)

			Convey("Then entries moved from the fuller node to the emptier one", func() {
				So(left.SlotCount(), ShouldBeLessThan, 8)
				So(right.SlotCount(), ShouldBeGreaterThan, 1)
			})

			Convey("Then the outer fences are untouched", func() {
				So(left.LowFence(), ShouldEqual, uint32(0))
				So(right.HighFence(), ShouldEqual, uint32(100))
			})

			Convey("Then the shared boundary still separates the two key sets", func() {
				for i := 0; i < left.SlotCount(); i++ {
					k, _ := left.Read(i)
					So(k < left.HighFence(), ShouldBeTrue)
				}
				for i := 0; i < right.SlotCount(); i++ {
					k, _ := right.Read(i)
					So(k >= right.LowFence(), ShouldBeTrue)
				}
			})
		})
	})
}

func TestNodeRangeIter(t *testing.T) {
	Convey("Given a leaf with several entries", t, func() {
		n := newLeaf(512, 0, 100)
		for _, k := range []uint32{10, 20, 30, 40, 50} {
			So(n.Insert(k, []byte{byte(k)}), ShouldBeNil)
		}

		Convey("When scanning a bounded range", func() {
			var got []uint32
			for k := range n.RangeIter(opt.Some(uint32(20)), opt.Some(uint32(50))) {
				got = append(got, k)
			}

			Convey("Then only keys in range come back", func() {
				So(got, ShouldResemble, []uint32{20, 30, 40})
			})
		})
	})
}
