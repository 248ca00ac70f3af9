package sock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T, s *fakeStack, cfg ListenerConfig) (*Listener, *fakeListener) {
	t.Helper()
	lsn, err := Listen(s, 7000, cfg)
	require.NoError(t, err)
	return lsn, s.listeners[len(s.listeners)-1]
}

func TestListenInvalid(t *testing.T) {
	s := newFakeStack()
	_, err := Listen(nil, 7000, ListenerConfig{})
	assert.Error(t, err)
	_, err = Listen(s, 0, ListenerConfig{})
	assert.Error(t, err)

	s.listenErr = assert.AnError
	_, err = Listen(s, 7000, ListenerConfig{})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestAcceptFIFO(t *testing.T) {
	s := newFakeStack()
	lsn, fl := listen(t, s, ListenerConfig{})

	a, b, c := &fakeConn{sendFree: 64}, &fakeConn{sendFree: 64}, &fakeConn{sendFree: 64}
	fl.accept(a)
	fl.accept(b)
	fl.accept(c)
	assert.Equal(t, 3, lsn.Len())

	for i, want := range []*fakeConn{a, b, c} {
		cl := lsn.Accept()
		require.True(t, cl.Valid(), "accept %d", i)
		assert.Equal(t, StateEstablished, cl.State())
		// Identify the connection by writing through it.
		_, err := cl.Write([]byte{byte('A' + i)})
		require.NoError(t, err)
		assert.Equal(t, []byte{byte('A' + i)}, want.written, "accept %d", i)
	}
	assert.False(t, lsn.Accept().Valid())
	assert.Zero(t, lsn.Len())
}

// Data arriving between the handshake and Accept is buffered by the
// queued holder and readable from the accepted client.
func TestAcceptBuffersEarlyData(t *testing.T) {
	s := newFakeStack()
	lsn, fl := listen(t, s, ListenerConfig{})

	fc := &fakeConn{sendFree: 64}
	fl.accept(fc)
	require.Equal(t, RecvConsumed, fc.deliver([]byte("early")))

	cl := lsn.Accept()
	require.True(t, cl.Valid())
	dst := make([]byte, 8)
	n, err := cl.Read(dst)
	require.NoError(t, err)
	assert.Equal(t, "early", string(dst[:n]))
}

// Available picks the first queued connection with buffered data even
// when an idle connection is ahead of it in accept order.
func TestListenerAvailable(t *testing.T) {
	s := newFakeStack()
	lsn, fl := listen(t, s, ListenerConfig{})

	idle, busy := &fakeConn{sendFree: 64}, &fakeConn{sendFree: 64}
	fl.accept(idle)
	assert.False(t, lsn.Available().Valid(), "no data anywhere yet")

	fl.accept(busy)
	require.Equal(t, RecvConsumed, busy.deliver([]byte("ping")))

	cl := lsn.Available()
	require.True(t, cl.Valid())
	dst := make([]byte, 8)
	n, err := cl.Read(dst)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(dst[:n]))

	// The idle connection stays queued for a later Accept.
	require.Equal(t, 1, lsn.Len())
	acc := lsn.Accept()
	require.True(t, acc.Valid())
	_, err = acc.Write([]byte("z"))
	require.NoError(t, err)
	assert.Equal(t, []byte("z"), idle.written)
}

func TestBacklogFull(t *testing.T) {
	s := newFakeStack()
	lsn, fl := listen(t, s, ListenerConfig{Backlog: 2})

	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	fl.accept(a)
	fl.accept(b)
	fl.accept(c)
	assert.Equal(t, 2, lsn.Len())
	// The overflow connection is disassociated, then aborted.
	assert.Equal(t, []string{"setevents-nil", "abort"}, c.ops)
	assert.False(t, a.aborted)
	assert.False(t, b.aborted)
}

func TestListenerErroredBeforeAccept(t *testing.T) {
	s := newFakeStack()
	lsn, fl := listen(t, s, ListenerConfig{})

	fc := &fakeConn{}
	fl.accept(fc)
	require.Equal(t, 1, lsn.Len())
	// The stack kills the queued connection before anyone accepts it:
	// the holder unlinks itself from the queue.
	fc.ev.Errored(fc, assert.AnError)
	assert.Zero(t, lsn.Len())
	assert.False(t, lsn.Accept().Valid())
}

func TestListenerClose(t *testing.T) {
	s := newFakeStack()
	lsn, fl := listen(t, s, ListenerConfig{})

	first := &fakeConn{sendFree: 64}
	second := &fakeConn{sendFree: 64}
	fl.accept(first)
	fl.accept(second)
	cl := lsn.Accept() // pops first, the oldest
	require.True(t, cl.Valid())

	require.NoError(t, lsn.Close())
	assert.True(t, fl.closed)
	assert.Nil(t, fl.ev)
	// Unaccepted connections are aborted; accepted ones live on.
	assert.True(t, second.aborted)
	assert.False(t, first.aborted)
	_, err := cl.Write([]byte("x"))
	assert.NoError(t, err)
	assert.Equal(t, []byte("x"), first.written)

	assert.ErrorIs(t, lsn.Close(), ErrClosed)
}

func TestAcceptedErrorIgnored(t *testing.T) {
	s := newFakeStack()
	lsn, fl := listen(t, s, ListenerConfig{})
	// Handshake failures reach the sink with a nil conn; nothing queues.
	fl.ev.Accepted(fl, nil, assert.AnError)
	assert.Zero(t, lsn.Len())
}
