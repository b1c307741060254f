package addrpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateAndFreeCoalesce(t *testing.T) {
	p := New(0, 4*PageSize())

	a, err := p.Allocate(PageSize())
	require.NoError(t, err)
	b, err := p.Allocate(PageSize())
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	p.Free(a, PageSize())
	p.Free(b, PageSize())

	// after freeing both, the pool should be able to serve a request for
	// the whole 4-page range again.
	_, err = p.Allocate(4 * PageSize())
	require.NoError(t, err)
}

func TestExhaustion(t *testing.T) {
	p := New(0, PageSize())
	_, err := p.Allocate(PageSize())
	require.NoError(t, err)
	_, err = p.Allocate(PageSize())
	require.ErrorIs(t, err, ErrExhausted)
}

func TestAllocateAtSplitsRange(t *testing.T) {
	p := New(0, 10*PageSize())
	require.NoError(t, p.AllocateAt(2*PageSize(), PageSize()))
	// the range before and after the carved-out page should still be usable.
	_, err := p.Allocate(2 * PageSize())
	require.NoError(t, err)
}
