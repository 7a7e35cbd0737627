package mcpmgr

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/mxf-project/mxf/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	connectErr error
	callResult json.RawMessage
	callErr    error

	mu        sync.Mutex
	connected bool
	closed    bool
	calls     int
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.callResult, nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func TestManagerStartTransitionsToReady(t *testing.T) {
	ft := &fakeTransport{callResult: json.RawMessage(`{"ok":true}`)}
	m := NewWithTransportFactory(nil, func(*models.ExternalMCPServer) Transport { return ft })

	require.NoError(t, m.Register(models.ExternalMCPServer{ID: "s1", Transport: models.MCPTransportHTTP, URL: "https://example.test"}))
	require.NoError(t, m.Start(context.Background(), "s1"))

	state, ok := m.State("s1")
	require.True(t, ok)
	assert.Equal(t, models.MCPStateReady, state)
}

func TestManagerStartFailureSetsFailedState(t *testing.T) {
	ft := &fakeTransport{connectErr: assertErr("boom")}
	m := NewWithTransportFactory(nil, func(*models.ExternalMCPServer) Transport { return ft })

	require.NoError(t, m.Register(models.ExternalMCPServer{ID: "s1", Transport: models.MCPTransportHTTP, URL: "https://example.test"}))
	err := m.Start(context.Background(), "s1")
	require.Error(t, err)

	state, _ := m.State("s1")
	assert.Equal(t, models.MCPStateFailed, state)
}

func TestManagerDispatchRoutesToTransport(t *testing.T) {
	ft := &fakeTransport{callResult: json.RawMessage(`"sunny"`)}
	m := NewWithTransportFactory(nil, func(*models.ExternalMCPServer) Transport { return ft })

	require.NoError(t, m.Register(models.ExternalMCPServer{ID: "s1", Transport: models.MCPTransportHTTP, URL: "https://example.test"}))
	require.NoError(t, m.Start(context.Background(), "s1"))

	result, err := m.Dispatch(context.Background(), models.ExternalSource("s1"), "weather", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, `"sunny"`, result)
}

func TestManagerDispatchNotReadyFails(t *testing.T) {
	ft := &fakeTransport{}
	m := NewWithTransportFactory(nil, func(*models.ExternalMCPServer) Transport { return ft })
	require.NoError(t, m.Register(models.ExternalMCPServer{ID: "s1", Transport: models.MCPTransportHTTP, URL: "https://example.test"}))

	_, err := m.Dispatch(context.Background(), models.ExternalSource("s1"), "weather", json.RawMessage(`{}`))
	require.Error(t, err)
}

func TestManagerStopReleasesTransport(t *testing.T) {
	ft := &fakeTransport{callResult: json.RawMessage(`{}`)}
	m := NewWithTransportFactory(nil, func(*models.ExternalMCPServer) Transport { return ft })
	require.NoError(t, m.Register(models.ExternalMCPServer{ID: "s1", Transport: models.MCPTransportHTTP, URL: "https://example.test"}))
	require.NoError(t, m.Start(context.Background(), "s1"))
	require.NoError(t, m.Stop("s1"))

	state, _ := m.State("s1")
	assert.Equal(t, models.MCPStateStopped, state)
	ft.mu.Lock()
	assert.True(t, ft.closed)
	ft.mu.Unlock()
}

func TestManagerStartWithoutKeepAliveLeavesServerReady(t *testing.T) {
	ft := &fakeTransport{callResult: json.RawMessage(`{}`)}
	m := NewWithTransportFactory(nil, func(*models.ExternalMCPServer) Transport { return ft })
	require.NoError(t, m.Register(models.ExternalMCPServer{
		ID: "s1", Transport: models.MCPTransportHTTP, URL: "https://example.test",
		Scope: models.ChannelScope("c1"), KeepAliveMinutes: 0,
	}))
	require.NoError(t, m.Start(context.Background(), "s1"))
	// KeepAliveMinutes of 0 means no keepalive loop is started; this test
	// only verifies Start does not spawn one and panic/deadlock.
	state, _ := m.State("s1")
	assert.Equal(t, models.MCPStateReady, state)
}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }

func assertErr(msg string) error { return &testErr{msg: msg} }
