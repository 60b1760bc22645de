package icache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goose-fs/xv6fs/common"
)

func TestGetReusesSameSlotForSameInum(t *testing.T) {
	c := MkCache(4)
	s1 := c.Get(common.Inum(5))
	s2 := c.Get(common.Inum(5))
	require.Same(t, s1, s2)
	c.Put(s1)
	c.Put(s2)
}

func TestGetClaimsDistinctSlotsForDistinctInums(t *testing.T) {
	c := MkCache(4)
	s1 := c.Get(common.Inum(1))
	s2 := c.Get(common.Inum(2))
	require.NotSame(t, s1, s2)
}

func TestPutFreesSlotForReuse(t *testing.T) {
	c := MkCache(1)
	s1 := c.Get(common.Inum(1))
	require.Equal(t, uint32(0), c.Put(s1))

	s2 := c.Get(common.Inum(2))
	require.Equal(t, common.Inum(2), s2.Inum)
}

func TestGetPanicsWhenTableIsFull(t *testing.T) {
	c := MkCache(2)
	c.Get(common.Inum(1))
	c.Get(common.Inum(2))
	require.Panics(t, func() {
		c.Get(common.Inum(3))
	})
}

func TestDupIncrementsRefWithoutNewSlot(t *testing.T) {
	c := MkCache(1)
	s := c.Get(common.Inum(1))
	c.Dup(s)
	require.Equal(t, uint32(1), c.Put(s))
	require.Equal(t, uint32(0), c.Put(s))
}

func TestRefCountDoesNotConsumeReference(t *testing.T) {
	c := MkCache(1)
	s := c.Get(common.Inum(1))
	c.Dup(s)
	require.Equal(t, uint32(2), c.RefCount(s))
	require.Equal(t, uint32(2), c.RefCount(s))
	require.Equal(t, uint32(1), c.Put(s))
	require.Equal(t, uint32(1), c.RefCount(s))
	require.Equal(t, uint32(0), c.Put(s))
}
