package trap

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/microkernel/internal/dispatch"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/kernel"
)

type rig struct {
	host    *Host
	disp    *dispatch.Dispatcher
	metrics *monitoring.Metrics
}

func newRig(t *testing.T, slots int) *rig {
	t.Helper()
	table, err := kernel.NewTable(slots)
	require.NoError(t, err)
	m := monitoring.NewMetrics()
	h := NewHost(table, m)
	return &rig{host: h, disp: dispatch.New(h.Core(), dispatch.WithMetrics(m)), metrics: m}
}

func (g *rig) port(t *testing.T, s kernel.Slot) *Port {
	t.Helper()
	r, err := g.host.Spawn(s, "")
	require.NoError(t, err)
	return g.host.Port(g.disp, r, 0)
}

func echo(ctx context.Context, p *Port, rounds int) error {
	var m kernel.Message
	for i := 0; i < rounds; i++ {
		if err := p.Call(ctx, dispatch.OpReceive, kernel.Any, &m); err != nil {
			return err
		}
		m.SetWord(0, m.Word(0)*2)
		if err := p.Call(ctx, dispatch.OpReply, m.Source, &m); err != nil {
			return err
		}
	}
	return nil
}

func TestSendRecEcho(t *testing.T) {
	if kernel.RaceEnabled {
		t.Skip("skip: atomix orderings are invisible to the race detector")
	}

	const rounds = 200
	g := newRig(t, 4)
	server, client := g.port(t, 1), g.port(t, 2)

	ctx := context.Background()
	errc := make(chan error, 1)
	go func() { errc <- echo(ctx, server, rounds) }()

	for i := 0; i < rounds; i++ {
		m := kernel.Message{Type: 1}
		m.SetWord(0, uint64(i))
		require.NoError(t, client.Call(ctx, dispatch.OpSendRec, server.Endpoint(), &m))
		require.Equal(t, server.Endpoint(), m.Source)
		require.Equal(t, uint64(2*i), m.Word(0))
	}
	require.NoError(t, <-errc)

	assert.Equal(t, 0.0, testutil.ToFloat64(g.metrics.Parked))
	stats := g.disp.Stats()
	assert.Equal(t, uint64(2*rounds), stats.Sent)
	// A sendrec suspends for its reply: only the server's receives count.
	assert.Equal(t, uint64(rounds), stats.Received)
}

func TestManyClients(t *testing.T) {
	if kernel.RaceEnabled {
		t.Skip("skip: atomix orderings are invisible to the race detector")
	}

	const (
		clients = 5
		rounds  = 50
	)
	g := newRig(t, clients+2)
	server := g.port(t, 0)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() { errc <- echo(ctx, server, clients*rounds) }()

	var wg sync.WaitGroup
	for c := 1; c <= clients; c++ {
		p := g.port(t, kernel.Slot(c))
		wg.Add(1)
		go func(p *Port) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				m := kernel.Message{}
				m.SetWord(0, uint64(i))
				if !assert.NoError(t, p.Call(ctx, dispatch.OpSendRec, server.Endpoint(), &m)) {
					return
				}
				assert.Equal(t, uint64(2*i), m.Word(0))
			}
		}(p)
	}
	wg.Wait()
	require.NoError(t, <-errc)
}

func TestCallCancelledAborts(t *testing.T) {
	g := newRig(t, 4)
	r := g.port(t, 1)
	g.port(t, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var m kernel.Message
	err := r.Call(ctx, dispatch.OpReceive, kernel.Any, &m)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	rec, ok := g.host.Core().Table().Resolve(r.Endpoint())
	require.True(t, ok)
	assert.Equal(t, kernel.Flags(0), rec.Flags())
	assert.True(t, g.host.Contains(rec))
	assert.Equal(t, 0.0, testutil.ToFloat64(g.metrics.Parked))
}

func TestCancelledSendLeavesQueue(t *testing.T) {
	if kernel.RaceEnabled {
		t.Skip("skip: atomix orderings are invisible to the race detector")
	}

	g := newRig(t, 4)
	sender, receiver := g.port(t, 1), g.port(t, 2)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- sender.Call(ctx, dispatch.OpSend, receiver.Endpoint(), &kernel.Message{Type: 3})
	}()

	rec, _ := g.host.Core().Table().Resolve(sender.Endpoint())
	require.Eventually(t, func() bool { return rec.Flags() == kernel.Sending }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	var m kernel.Message
	err := receiver.Call(context.Background(), dispatch.OpSendNB, sender.Endpoint(), &m)
	assert.ErrorIs(t, err, kernel.ErrWouldBlock)
	_, err = g.host.Core().Receive(mustResolve(t, g, receiver.Endpoint()), kernel.Any, &m, true)
	assert.ErrorIs(t, err, kernel.ErrWouldBlock, "aborted message is never delivered")
}

func TestTerminateWakesParkedCaller(t *testing.T) {
	if kernel.RaceEnabled {
		t.Skip("skip: atomix orderings are invisible to the race detector")
	}

	g := newRig(t, 4)
	victim, peer := g.port(t, 1), g.port(t, 2)

	errc := make(chan error, 1)
	go func() {
		var m kernel.Message
		errc <- victim.Call(context.Background(), dispatch.OpReceive, peer.Endpoint(), &m)
	}()

	rec := mustResolve(t, g, victim.Endpoint())
	require.Eventually(t, func() bool { return rec.Flags() == kernel.Receiving }, time.Second, time.Millisecond)
	require.NoError(t, g.host.Terminate(victim.Endpoint()))
	assert.ErrorIs(t, <-errc, kernel.ErrNoSuchProcess)
}

func TestTerminatePeerFailsWaiter(t *testing.T) {
	if kernel.RaceEnabled {
		t.Skip("skip: atomix orderings are invisible to the race detector")
	}

	g := newRig(t, 4)
	waiter, peer := g.port(t, 1), g.port(t, 2)

	errc := make(chan error, 1)
	go func() {
		var m kernel.Message
		errc <- waiter.Call(context.Background(), dispatch.OpReceive, peer.Endpoint(), &m)
	}()

	rec := mustResolve(t, g, waiter.Endpoint())
	require.Eventually(t, func() bool { return rec.Flags() == kernel.Receiving }, time.Second, time.Millisecond)
	require.NoError(t, g.host.Terminate(peer.Endpoint()))
	assert.ErrorIs(t, <-errc, kernel.ErrNoSuchProcess)
	assert.Equal(t, kernel.Flags(0), rec.Flags())
}

func TestSendPoll(t *testing.T) {
	if kernel.RaceEnabled {
		t.Skip("skip: atomix orderings are invisible to the race detector")
	}

	g := newRig(t, 4)
	sender, receiver := g.port(t, 1), g.port(t, 2)

	got := make(chan kernel.Message, 1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		var m kernel.Message
		if assert.NoError(t, receiver.Call(context.Background(), dispatch.OpReceive, kernel.Any, &m)) {
			got <- m
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sender.SendPoll(ctx, receiver.Endpoint(), &kernel.Message{Type: 9}))
	m := <-got
	assert.Equal(t, int32(9), m.Type)
	assert.Equal(t, sender.Endpoint(), m.Source)
}

func TestSendPollGivesUp(t *testing.T) {
	g := newRig(t, 4)
	sender, receiver := g.port(t, 1), g.port(t, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := sender.SendPoll(ctx, receiver.Endpoint(), &kernel.Message{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func mustResolve(t *testing.T, g *rig, e kernel.Endpoint) *kernel.Record {
	t.Helper()
	r, ok := g.host.Core().Table().Resolve(e)
	require.True(t, ok)
	return r
}
