package protocol

import (
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/tracekit/errors"
	"github.com/c360/tracekit/packet"
)

func TestAsyncFIFOUnderLoad(t *testing.T) {
	p, stub := newStubProtocol(t, "async.enabled=true, async.queue=1mb, async.throttle=true")
	require.NoError(t, p.Connect())

	const count = 10000
	for i := 0; i < count; i++ {
		require.NoError(t, p.WritePacket(testEntry(packet.LevelMessage, fmt.Sprintf("%d", i))))
	}
	require.NoError(t, p.Disconnect())

	recorded := stub.recorded()
	require.Len(t, recorded, count, "throttle mode must not drop packets")
	for i, pk := range recorded {
		require.Equal(t, fmt.Sprintf("%d", i), pk.(*packet.LogEntry).Title,
			"packets must be written in enqueue order")
	}
}

func TestAsyncDropOldKeepsContiguousSuffix(t *testing.T) {
	p, stub := newStubProtocol(t, "async.enabled=true, async.queue=4kb, async.throttle=false")
	stub.writeDelay = 100 * time.Microsecond // make producers outrun the worker
	require.NoError(t, p.Connect())

	const count = 2000
	for i := 0; i < count; i++ {
		require.NoError(t, p.WritePacket(testEntry(packet.LevelMessage, fmt.Sprintf("%d", i))))
	}
	require.NoError(t, p.Disconnect())

	recorded := stub.recorded()
	require.NotEmpty(t, recorded)
	assert.Less(t, len(recorded), count, "overflow must have dropped packets")
	assert.Greater(t, p.sched.droppedCount(), int64(0))

	var seqs []int
	for _, pk := range recorded {
		var n int
		_, err := fmt.Sscanf(pk.(*packet.LogEntry).Title, "%d", &n)
		require.NoError(t, err)
		seqs = append(seqs, n)
	}

	// FIFO order survives drops, and the queue drains to the sentinel:
	// the final submitted packet is always written.
	for i := 1; i < len(seqs); i++ {
		require.Greater(t, seqs[i], seqs[i-1])
	}
	assert.Equal(t, count-1, seqs[len(seqs)-1])

	// The retained tail is a contiguous suffix of the submitted
	// sequence: the packets after the last drop have no holes.
	tail := seqs
	for i := len(seqs) - 1; i > 0; i-- {
		if seqs[i] != seqs[i-1]+1 {
			tail = seqs[i:]
			break
		}
	}
	for i := 1; i < len(tail); i++ {
		require.Equal(t, tail[i-1]+1, tail[i])
	}
}

func TestQueueBoundHolds(t *testing.T) {
	p, _ := newStubProtocol(t, "async.enabled=true, async.queue=8kb, async.throttle=true")
	require.NoError(t, p.Connect())

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Sample the queue size while producers hammer it.
	var maxSeen int64
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				if b := p.sched.queueBytes(); b > maxSeen {
					maxSeen = b
				}
			}
		}
	}()

	for i := 0; i < 2000; i++ {
		require.NoError(t, p.WritePacket(testEntry(packet.LevelMessage, "payload payload payload")))
	}
	close(stop)
	wg.Wait()
	require.NoError(t, p.Disconnect())

	assert.LessOrEqual(t, maxSeen, int64(8*1024), "queue bytes must never exceed async.queue")
}

func TestAsyncErrorsSurfaceViaEvent(t *testing.T) {
	var mu sync.Mutex
	var surfaced []error

	descs, err := ParseConnections("stub(async.enabled=true)")
	require.NoError(t, err)
	p, err := New(descs[0], Environment{
		OnError: func(e error) {
			mu.Lock()
			surfaced = append(surfaced, e)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	stub := p.transport.(*stubTransport)
	stub.setOpenErr(fmt.Errorf("refused"))

	// Neither connect nor write propagate errors to the producer.
	require.NoError(t, p.Connect())
	require.NoError(t, p.WritePacket(testEntry(packet.LevelMessage, "a")))
	require.NoError(t, p.Disconnect())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, surfaced)
	assert.True(t, stderrors.Is(surfaced[0], errors.ErrProtocol))
}

func TestWriteAfterDisconnectFails(t *testing.T) {
	p, _ := newStubProtocol(t, "async.enabled=true")
	require.NoError(t, p.Connect())
	require.NoError(t, p.Disconnect())

	err := p.WritePacket(testEntry(packet.LevelMessage, "late"))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrSchedulerStopped))
}

func TestClearOnDisconnectDropsQueue(t *testing.T) {
	p, stub := newStubProtocol(t, "async.enabled=true, async.clearondisconnect=true")
	// Never connect: the worker cannot deliver, and with
	// clearondisconnect the remaining queue is dropped at disconnect.
	for i := 0; i < 50; i++ {
		require.NoError(t, p.WritePacket(testEntry(packet.LevelMessage, "x")))
	}
	require.NoError(t, p.Disconnect())
	assert.Empty(t, stub.recorded())
}

func TestDisconnectIdempotent(t *testing.T) {
	p, _ := newStubProtocol(t, "async.enabled=true")
	require.NoError(t, p.Connect())
	require.NoError(t, p.Disconnect())
	require.NoError(t, p.Disconnect())
	p.Join()
}

func TestOversizedPacketDroppedInDropOldMode(t *testing.T) {
	p, stub := newStubProtocol(t, "async.enabled=true, async.queue=64, async.throttle=false")
	require.NoError(t, p.Connect())

	big := testEntry(packet.LevelMessage, string(make([]byte, 4096)))
	require.NoError(t, p.WritePacket(big), "an oversized packet is dropped, not an error")

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, p.Disconnect())

	for _, pk := range stub.recorded() {
		assert.NotEqual(t, big, pk)
	}
	assert.GreaterOrEqual(t, p.sched.droppedCount(), int64(1))
}
