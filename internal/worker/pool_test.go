package worker

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolServesConcurrentConnections(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var served int32
	p := New(ln, 4, time.Second, func(conn net.Conn) {
		atomic.AddInt32(&served, 1)
		buf := make([]byte, 4)
		n, _ := conn.Read(buf)
		conn.Write(buf[:n])
	}, nil)

	go p.Run()
	t.Cleanup(func() { p.Stop(time.Second) })

	for i := 0; i < 3; i++ {
		conn, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		_, err = conn.Write([]byte("ping"))
		require.NoError(t, err)
		buf := make([]byte, 4)
		n, err := conn.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "ping", string(buf[:n]))
		conn.Close()
	}

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&served) != 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.EqualValues(t, 3, atomic.LoadInt32(&served))
}

func TestPoolStopClosesListenerAndReturns(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	p := New(ln, 2, time.Second, func(conn net.Conn) {}, nil)

	runDone := make(chan struct{})
	go func() {
		p.Run()
		close(runDone)
	}()

	require.NoError(t, p.Stop(time.Second))

	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
