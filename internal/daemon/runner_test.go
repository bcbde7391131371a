package daemon

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photon-run/photond/internal/photon"
	"github.com/photon-run/photond/internal/photonerr"
)

type greeterInstance struct {
	greetFn func(ctx context.Context, args map[string]any) (any, error)
}

func (g *greeterInstance) Invoke(ctx context.Context, method string, args map[string]any) (any, error) {
	return g.greetFn(ctx, args)
}

func newTestHost(t *testing.T, descriptor *photon.Descriptor, instance photon.Instance) *InstanceHost {
	t.Helper()
	reg := photon.NewRegistry()
	reg.Register("test.js", descriptor, func(ctx context.Context, args map[string]any) (photon.Instance, error) {
		return instance, nil
	})

	host := NewInstanceHost("greeter", nil, nil, Dependencies{}, reg, NewChannelBus(), 500*time.Millisecond, slog.Default())
	require.NoError(t, host.Load(context.Background(), "test.js"))
	return host
}

func TestMethodRunner_InvokeUnknownMethod(t *testing.T) {
	descriptor := &photon.Descriptor{Name: "greeter", Methods: []photon.MethodDescriptor{{Name: "greet"}}}
	instance := &greeterInstance{greetFn: func(ctx context.Context, args map[string]any) (any, error) { return "hi", nil }}
	host := newTestHost(t, descriptor, instance)

	locks := NewLockManager()
	defer locks.Close()
	runner := NewMethodRunner(host, locks, slog.Default())

	conn, _ := newConnectionPair(t)
	defer conn.Close()

	res := runner.Invoke(context.Background(), Call{RequestID: "r1", Method: "nope", Timeout: time.Second, Conn: conn})
	require.Error(t, res.Err)
	perr, ok := res.Err.(*photonerr.Error)
	require.True(t, ok)
	assert.Equal(t, photonerr.KindUnknownMethod, perr.Kind)
}

func TestMethodRunner_InvokeScheduledVanishedMethod(t *testing.T) {
	descriptor := &photon.Descriptor{Name: "greeter", Methods: []photon.MethodDescriptor{{Name: "greet"}}}
	instance := &greeterInstance{greetFn: func(ctx context.Context, args map[string]any) (any, error) { return "hi", nil }}
	host := newTestHost(t, descriptor, instance)

	locks := NewLockManager()
	defer locks.Close()
	runner := NewMethodRunner(host, locks, slog.Default())

	// No Conn: a scheduler fire for a job whose method no longer
	// exists on the current generation, per §4.4/§4.7.
	res := runner.Invoke(context.Background(), Call{RequestID: "scheduler:job1", Method: "vanished", Timeout: time.Second})
	require.Error(t, res.Err)
	perr, ok := res.Err.(*photonerr.Error)
	require.True(t, ok)
	assert.Equal(t, photonerr.KindMethodMissing, perr.Kind)
}

func TestMethodRunner_InvokeSuccess(t *testing.T) {
	descriptor := &photon.Descriptor{Name: "greeter", Methods: []photon.MethodDescriptor{{Name: "greet"}}}
	instance := &greeterInstance{greetFn: func(ctx context.Context, args map[string]any) (any, error) { return "hi", nil }}
	host := newTestHost(t, descriptor, instance)

	locks := NewLockManager()
	defer locks.Close()
	runner := NewMethodRunner(host, locks, slog.Default())

	res := runner.Invoke(context.Background(), Call{RequestID: "r1", Method: "greet", Timeout: time.Second})
	require.NoError(t, res.Err)
	assert.Equal(t, "hi", res.Value)
}

func TestMethodRunner_SerializesDefaultDomain(t *testing.T) {
	var order []int
	descriptor := &photon.Descriptor{Name: "counter", Methods: []photon.MethodDescriptor{{Name: "bump"}}}
	i := 0
	instance := &greeterInstance{greetFn: func(ctx context.Context, args map[string]any) (any, error) {
		n := args["n"].(int)
		time.Sleep(5 * time.Millisecond)
		order = append(order, n)
		_ = i
		return n, nil
	}}
	host := newTestHost(t, descriptor, instance)

	locks := NewLockManager()
	defer locks.Close()
	runner := NewMethodRunner(host, locks, slog.Default())

	done := make(chan struct{}, 3)
	for n := 0; n < 3; n++ {
		n := n
		go func() {
			runner.Invoke(context.Background(), Call{RequestID: "r", Method: "bump", Args: map[string]any{"n": n}, Timeout: time.Second})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 3; i++ {
		<-done
	}
	assert.Len(t, order, 3, "all three calls must have executed exactly once each")
}

func TestMethodRunner_LockedMethodAcquiresNamedDomain(t *testing.T) {
	descriptor := &photon.Descriptor{
		Name:    "vault",
		Methods: []photon.MethodDescriptor{{Name: "withdraw", Locked: "account"}},
	}
	instance := &greeterInstance{greetFn: func(ctx context.Context, args map[string]any) (any, error) {
		return "ok", nil
	}}
	host := newTestHost(t, descriptor, instance)

	locks := NewLockManager()
	defer locks.Close()
	runner := NewMethodRunner(host, locks, slog.Default())

	res := runner.Invoke(context.Background(), Call{RequestID: "r1", Method: "withdraw", SessionID: "s1", Timeout: time.Second})
	require.NoError(t, res.Err)

	snapshot := locks.List()
	assert.Empty(t, snapshot, "the named lock must be released once the method body returns")
}
