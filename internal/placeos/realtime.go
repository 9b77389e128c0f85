package placeos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrBindingTimeout = errors.New("placeos: binding produced no value before timeout")
	ErrBindingClosed  = errors.New("placeos: binding closed")
)

// Binder waits on live module state variables.
type Binder interface {
	WaitFirst(ctx context.Context, systemID string, ref ModuleRef, name string, timeout time.Duration) (json.RawMessage, error)
}

type bindingKey struct {
	sys   string
	mod   string
	index int
	name  string
}

type request struct {
	ID    int64  `json:"id"`
	Cmd   string `json:"cmd"`
	Sys   string `json:"sys"`
	Mod   string `json:"mod"`
	Index int    `json:"index"`
	Name  string `json:"name"`
}

type frame struct {
	ID    int64           `json:"id"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
	Code  int             `json:"code"`
	Msg   string          `json:"msg"`
	Meta  struct {
		Sys   string `json:"sys"`
		Mod   string `json:"mod"`
		Index int    `json:"index"`
		Name  string `json:"name"`
	} `json:"meta"`
}

// Realtime multiplexes binding subscriptions over one control websocket.
// The connection is dialed lazily and re-dialed on the next Subscribe after
// it drops; subscribers of a dropped connection see their channel closed.
type Realtime struct {
	url    string
	dialer *websocket.Dialer
	logger *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	nextID  int64
	subs    map[bindingKey]map[int64]chan json.RawMessage
	last    map[bindingKey]json.RawMessage
	pending map[int64]bindingKey

	writeMu sync.Mutex
}

func NewRealtime(wsURL, token string, logger *zap.Logger) (*Realtime, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("bearer_token", token)
		u.RawQuery = q.Encode()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Realtime{
		url:     u.String(),
		dialer:  &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		logger:  logger,
		subs:    make(map[bindingKey]map[int64]chan json.RawMessage),
		last:    make(map[bindingKey]json.RawMessage),
		pending: make(map[int64]bindingKey),
	}, nil
}

// Subscribe binds to a module state variable. Values are delivered latest-first:
// a slow reader only ever sees the newest value. cancel must be called once.
func (r *Realtime) Subscribe(ctx context.Context, systemID string, ref ModuleRef, name string) (<-chan json.RawMessage, func(), error) {
	conn, err := r.connect(ctx)
	if err != nil {
		return nil, nil, err
	}

	key := bindingKey{sys: systemID, mod: ref.Name, index: max(ref.Index, 1), name: name}
	ch := make(chan json.RawMessage, 1)

	r.mu.Lock()
	r.nextID++
	subID := r.nextID
	group, exists := r.subs[key]
	if !exists {
		group = make(map[int64]chan json.RawMessage)
		r.subs[key] = group
	}
	group[subID] = ch
	if v, ok := r.last[key]; ok {
		ch <- v
	}
	var bindID int64
	if !exists {
		r.nextID++
		bindID = r.nextID
		r.pending[bindID] = key
	}
	r.mu.Unlock()

	if !exists {
		if err := r.send(conn, request{ID: bindID, Cmd: "bind", Sys: key.sys, Mod: key.mod, Index: key.index, Name: key.name}); err != nil {
			r.unsubscribe(key, subID)
			return nil, nil, fmt.Errorf("bind %s: %w", name, err)
		}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if r.unsubscribe(key, subID) {
				r.mu.Lock()
				r.nextID++
				id := r.nextID
				live := r.conn == conn
				r.mu.Unlock()
				if live {
					_ = r.send(conn, request{ID: id, Cmd: "unbind", Sys: key.sys, Mod: key.mod, Index: key.index, Name: key.name})
				}
			}
		})
	}
	return ch, cancel, nil
}

// WaitFirst returns the first value the binding emits. No value within
// timeout yields ErrBindingTimeout.
func (r *Realtime) WaitFirst(ctx context.Context, systemID string, ref ModuleRef, name string, timeout time.Duration) (json.RawMessage, error) {
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	ch, cancel, err := r.Subscribe(ctx, systemID, ref, name)
	if err != nil {
		return nil, err
	}
	defer cancel()

	select {
	case v, ok := <-ch:
		if !ok {
			return nil, ErrBindingClosed
		}
		return v, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrBindingTimeout
		}
		return nil, ctx.Err()
	}
}

// Close drops the connection and closes every subscriber channel.
func (r *Realtime) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return nil
	}
	r.drop(conn)
	return conn.Close()
}

// connect returns the live connection, dialing one if there is none. mu is
// not held during the handshake; when two callers race, the first stored
// connection wins and the other is closed unused.
func (r *Realtime) connect(ctx context.Context) (*websocket.Conn, error) {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn != nil {
		return conn, nil
	}

	dialed, _, err := r.dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial control websocket: %w", err)
	}

	r.mu.Lock()
	if r.conn != nil {
		conn = r.conn
		r.mu.Unlock()
		dialed.Close()
		return conn, nil
	}
	r.conn = dialed
	r.mu.Unlock()

	go r.readLoop(dialed)
	r.logger.Info("Control websocket connected")
	return dialed, nil
}

func (r *Realtime) send(conn *websocket.Conn, req request) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(req)
}

func (r *Realtime) readLoop(conn *websocket.Conn) {
	defer r.drop(conn)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				r.logger.Warn("Control websocket read failed", zap.Error(err))
			}
			return
		}
		var f frame
		if err := json.Unmarshal(msg, &f); err != nil {
			// keepalive "pong" and other non-JSON frames
			continue
		}
		switch f.Type {
		case "notify":
			key := bindingKey{sys: f.Meta.Sys, mod: f.Meta.Mod, index: max(f.Meta.Index, 1), name: f.Meta.Name}
			r.deliver(key, decodeValue(f.Value))
		case "success":
			r.mu.Lock()
			delete(r.pending, f.ID)
			r.mu.Unlock()
		case "error":
			r.fail(f.ID, f.Code, f.Msg)
		}
	}
}

func (r *Realtime) deliver(key bindingKey, value json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	group, ok := r.subs[key]
	if !ok {
		return
	}
	r.last[key] = value
	for _, ch := range group {
		select {
		case ch <- value:
		default:
			// replace the unread value with the newer one
			select {
			case <-ch:
			default:
			}
			ch <- value
		}
	}
}

// fail closes the subscribers of a rejected bind request.
func (r *Realtime) fail(id int64, code int, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.pending[id]
	if !ok {
		return
	}
	delete(r.pending, id)
	r.logger.Debug("Binding rejected",
		zap.String("sys", key.sys), zap.String("mod", key.mod), zap.String("name", key.name),
		zap.Int("code", code), zap.String("msg", msg))
	for _, ch := range r.subs[key] {
		close(ch)
	}
	delete(r.subs, key)
	delete(r.last, key)
}

// unsubscribe removes one subscriber and reports whether it was the last for key.
func (r *Realtime) unsubscribe(key bindingKey, subID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	group, ok := r.subs[key]
	if !ok {
		return false
	}
	ch, ok := group[subID]
	if !ok {
		return false
	}
	delete(group, subID)
	close(ch)
	if len(group) == 0 {
		delete(r.subs, key)
		delete(r.last, key)
		return true
	}
	return false
}

func (r *Realtime) drop(conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != conn {
		return
	}
	r.conn = nil
	for key, group := range r.subs {
		for _, ch := range group {
			close(ch)
		}
		delete(r.subs, key)
	}
	r.last = make(map[bindingKey]json.RawMessage)
	r.pending = make(map[int64]bindingKey)
}

// decodeValue unwraps status values the platform sends as JSON-encoded strings.
func decodeValue(raw json.RawMessage) json.RawMessage {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return raw
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	return raw
}
