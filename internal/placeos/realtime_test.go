package placeos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeControl answers bind requests from a fixed table of values. Names in
// silent are acknowledged but never emit; names in rejected get an error frame.
type fakeControl struct {
	values   map[string]any
	silent   map[string]bool
	rejected map[string]bool
	binds    atomic.Int32
	token    atomic.Value
}

func (f *fakeControl) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.token.Store(r.URL.Query().Get("bearer_token"))
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		var req request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Cmd != "bind" {
			continue
		}
		f.binds.Add(1)
		meta := map[string]any{"sys": req.Sys, "mod": req.Mod, "index": req.Index, "name": req.Name}
		if f.rejected[req.Name] {
			conn.WriteJSON(map[string]any{"id": req.ID, "type": "error", "code": 2, "msg": "unknown status"})
			continue
		}
		conn.WriteJSON(map[string]any{"id": req.ID, "type": "success", "meta": meta})
		if f.silent[req.Name] {
			continue
		}
		encoded, _ := json.Marshal(f.values[req.Name])
		conn.WriteJSON(map[string]any{"type": "notify", "value": string(encoded), "meta": meta})
	}
}

func newRealtime(t *testing.T, f *fakeControl) *Realtime {
	t.Helper()
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	rt, err := NewRealtime("ws"+strings.TrimPrefix(ts.URL, "http"), "tok", nil)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestWaitFirst_ReturnsDecodedValue(t *testing.T) {
	f := &fakeControl{values: map[string]any{
		"channels": []map[string]any{{"id": 1, "name": "Admin"}, {"id": "2", "name": "Professor View"}},
	}}
	rt := newRealtime(t, f)

	v, err := rt.WaitFirst(context.Background(), "sys-1", ModuleRef{Name: "Recording", Index: 1}, "channels", time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"name":"Admin"},{"id":"2","name":"Professor View"}]`, string(v))
	assert.Equal(t, "tok", f.token.Load())
}

func TestWaitFirst_TimesOut(t *testing.T) {
	f := &fakeControl{silent: map[string]bool{"channels": true}}
	rt := newRealtime(t, f)

	start := time.Now()
	_, err := rt.WaitFirst(context.Background(), "sys-1", ModuleRef{Name: "Recording", Index: 1}, "channels", 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrBindingTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitFirst_RejectedBindingFailsFast(t *testing.T) {
	f := &fakeControl{rejected: map[string]bool{"NDI3_video_status": true}}
	rt := newRealtime(t, f)

	_, err := rt.WaitFirst(context.Background(), "sys-1", ModuleRef{Name: "Recording", Index: 1}, "NDI3_video_status", 2*time.Second)
	assert.ErrorIs(t, err, ErrBindingClosed)
}

func TestWaitFirst_ConcurrentWaitsShareConnection(t *testing.T) {
	values := map[string]any{}
	for i := 1; i <= 5; i++ {
		values["NDI"+string(rune('0'+i))+"_video_status"] = i%2 == 1
	}
	f := &fakeControl{values: values}
	rt := newRealtime(t, f)

	results := make(chan bool, 5)
	for i := 1; i <= 5; i++ {
		name := "NDI" + string(rune('0'+i)) + "_video_status"
		go func() {
			v, err := rt.WaitFirst(context.Background(), "sys-1", ModuleRef{Name: "Recording", Index: 1}, name, time.Second)
			if err != nil {
				results <- false
				return
			}
			var b bool
			_ = json.Unmarshal(v, &b)
			results <- b
		}()
	}

	active := 0
	for i := 0; i < 5; i++ {
		if <-results {
			active++
		}
	}
	assert.Equal(t, 3, active)
	assert.Equal(t, int32(5), f.binds.Load())
}

func TestConnect_SlowHandshakeDoesNotBlockOthers(t *testing.T) {
	f := &fakeControl{values: map[string]any{"channels": []any{}}}
	arrived := make(chan struct{}, 1)
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case arrived <- struct{}{}:
		default:
		}
		<-release
		f.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)

	rt, err := NewRealtime("ws"+strings.TrimPrefix(ts.URL, "http"), "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })

	done := make(chan error, 1)
	go func() {
		_, err := rt.WaitFirst(context.Background(), "sys-1", ModuleRef{Name: "Recording", Index: 1}, "channels", 3*time.Second)
		done <- err
	}()

	select {
	case <-arrived:
	case <-time.After(time.Second):
		t.Fatal("handshake never reached the server")
	}

	unlocked := make(chan struct{})
	go func() {
		rt.mu.Lock()
		rt.mu.Unlock()
		close(unlocked)
	}()
	select {
	case <-unlocked:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("mutex held across the websocket handshake")
	}

	unblock()
	assert.NoError(t, <-done)
}

func TestWaitFirst_DialFailure(t *testing.T) {
	rt, err := NewRealtime("ws://127.0.0.1:1/control", "", nil)
	require.NoError(t, err)

	_, err = rt.WaitFirst(context.Background(), "sys-1", ModuleRef{Name: "Recording"}, "channels", 200*time.Millisecond)
	assert.Error(t, err)
}

func TestDecodeValue(t *testing.T) {
	assert.Equal(t, `true`, string(decodeValue(json.RawMessage(`"true"`))))
	assert.Equal(t, `[1,2]`, string(decodeValue(json.RawMessage(`"[1,2]"`))))
	assert.Equal(t, `"hello"`, string(decodeValue(json.RawMessage(`"hello"`))))
	assert.Equal(t, `false`, string(decodeValue(json.RawMessage(`false`))))
}
