package rpc

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingReq struct{}
type pingResp struct {
	Msg string `json:"msg"`
}

func startTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer("127.0.0.1:0")
	require.NoError(t, err)

	s.Register("ping", func(payload json.RawMessage) (json.RawMessage, bool) {
		return []byte(`{"msg":"pong"}`), true
	})
	s.Register("fail", func(payload json.RawMessage) (json.RawMessage, bool) {
		return nil, false
	})

	shutdown := make(chan struct{})
	go s.Serve(shutdown)
	t.Cleanup(func() {
		close(shutdown)
		s.Close()
	})
	return s
}

func TestClientCallRoundTrip(t *testing.T) {
	s := startTestServer(t)
	c := NewClient()

	var resp pingResp
	ok, err := c.Call(s.Addr(), "ping", pingReq{}, &resp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pong", resp.Msg)
}

func TestClientCallUnknownMethodIsNeutralFailure(t *testing.T) {
	s := startTestServer(t)
	c := NewClient()

	ok, err := c.Call(s.Addr(), "nonexistent", pingReq{}, nil)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestClientCallHandlerFailure(t *testing.T) {
	s := startTestServer(t)
	c := NewClient()

	ok, err := c.Call(s.Addr(), "fail", pingReq{}, nil)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestClientCallDialFailureIsError(t *testing.T) {
	c := &Client{timeout: 100 * time.Millisecond}
	ok, err := c.Call("127.0.0.1:1", "ping", pingReq{}, nil)
	assert.Error(t, err)
	assert.False(t, ok)
}
