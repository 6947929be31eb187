package netconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOnlineCountReturnsToZeroAfterEveryChildReleases(t *testing.T) {
	oc := newOnlineCount()
	assert.EqualValues(t, 0, oc.now())

	h1 := oc.acquire()
	h2 := oc.acquire()
	assert.EqualValues(t, 2, oc.now())

	h1.release()
	assert.EqualValues(t, 1, oc.now())
	h2.release()
	assert.EqualValues(t, 0, oc.now())
}

func TestOnlineCountReleaseIsIdempotent(t *testing.T) {
	oc := newOnlineCount()
	h := oc.acquire()
	h.release()
	h.release()
	assert.EqualValues(t, 0, oc.now())
}

func TestConnectionIDMinterCombinesServerAndCounter(t *testing.T) {
	m := newConnectionIDMinter()
	first := m.next()
	second := m.next()
	assert.Equal(t, m.serverID, first>>32)
	assert.Equal(t, m.serverID, second>>32)
	assert.Equal(t, uint32(1), uint32(first))
	assert.Equal(t, uint32(2), uint32(second))
}

func TestDistinctListenersGetDistinctServerIDs(t *testing.T) {
	a := newConnectionIDMinter()
	b := newConnectionIDMinter()
	assert.NotEqual(t, a.serverID, b.serverID)
}
