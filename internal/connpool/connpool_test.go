package connpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakePool builds a Pool with n bare Connections (no real ssh.Client),
// enough to exercise checkout/checkin without dialing anything.
func newFakePool(n int) *Pool {
	p := New(n, "")
	for i := 0; i < n; i++ {
		c := &Connection{id: i}
		p.conns = append(p.conns, c)
		p.free <- c
	}
	return p
}

func TestGetFreeConnectionReturnsOneAndMarksInUse(t *testing.T) {
	p := newFakePool(1)
	c, err := p.GetFreeConnection(context.Background())
	require.NoError(t, err)
	assert.True(t, c.inUse)
}

func TestGetFreeConnectionBlocksUntilContextDone(t *testing.T) {
	p := newFakePool(0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.GetFreeConnection(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUnlockConnectionReturnsItToTheFreeList(t *testing.T) {
	p := newFakePool(1)
	c, err := p.GetFreeConnection(context.Background())
	require.NoError(t, err)

	p.UnlockConnection(c)
	assert.False(t, c.inUse)

	got, err := p.GetFreeConnection(context.Background())
	require.NoError(t, err)
	assert.Same(t, c, got)
}

func TestConnectionIDAndClient(t *testing.T) {
	c := &Connection{id: 3}
	assert.Equal(t, 3, c.ID())
	assert.Nil(t, c.Client())
}

func TestServerKeyHashEmptyBeforeValidate(t *testing.T) {
	p := New(1, "")
	assert.Equal(t, "", p.ServerKeyHash())
}

func TestIsAuthErr(t *testing.T) {
	assert.True(t, isAuthErr(errors.New("ssh: unable to authenticate")))
	assert.True(t, isAuthErr(errors.New("some AUTH failure")))
	assert.False(t, isAuthErr(errors.New("connection refused")))
	assert.False(t, isAuthErr(nil))
}

func TestContainsFoldIsCaseInsensitive(t *testing.T) {
	assert.True(t, containsFold("Unable To Authenticate", "unable to authenticate"))
	assert.False(t, containsFold("short", "longer than short"))
}
