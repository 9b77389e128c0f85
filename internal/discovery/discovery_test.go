package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/roomview/internal/config"
	"github.com/technosupport/roomview/internal/data"
	"github.com/technosupport/roomview/internal/placeos"
)

const domain = "placeos.example.edu"

// fakeBinder answers from a table. Names without an entry block until the
// timeout, like a binding that never emits.
type fakeBinder struct {
	mu     sync.Mutex
	values map[string]string
	errs   map[string]error
	calls  []string
	refs   []placeos.ModuleRef
}

func (f *fakeBinder) WaitFirst(ctx context.Context, systemID string, ref placeos.ModuleRef, name string, timeout time.Duration) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.refs = append(f.refs, ref)
	v, hasValue := f.values[name]
	err, hasErr := f.errs[name]
	f.mu.Unlock()

	if hasErr {
		return nil, err
	}
	if hasValue {
		return json.RawMessage(v), nil
	}
	select {
	case <-time.After(timeout):
		return nil, placeos.ErrBindingTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeBinder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testConfig() config.DiscoveryConfig {
	cfg := config.Default().Discovery
	cfg.ProxyDomain = domain
	cfg.ChannelTimeout = 50 * time.Millisecond
	cfg.NDIStatusTimeout = 20 * time.Millisecond
	return cfg
}

func recordingModules() []data.Module {
	return []data.Module{
		{ID: "mod-cam", Name: "PTZ Camera", IP: "10.0.0.9"},
		{ID: "mod-rec", Name: "Recording", IP: "10.0.0.5"},
	}
}

func newTestService(cfg config.DiscoveryConfig, b placeos.Binder) *Service {
	return NewService(cfg, b, nil, nil, nil)
}

func TestPreviewURL(t *testing.T) {
	assert.Equal(t,
		"https://"+domain+"/epiphan/https/10.0.0.5/api/v2.0/channels/2/preview?resolution=300x300&keep_aspect_ratio=true&format=jpg",
		PreviewURL(domain, "10.0.0.5", "2"))
}

func TestNDIPreviewAndStreamURL(t *testing.T) {
	assert.Equal(t,
		"https://"+domain+"/epiphan/https/10.0.0.5/api/v2.0/inputs/NDI3/preview?resolution=300x300&keep_aspect_ratio=true&format=jpg",
		NDIPreviewURL(domain, "10.0.0.5", 3))
	assert.Equal(t,
		"https://"+domain+"/epiphan/https/10.0.0.5/streams/2/ts",
		StreamURL(domain, "10.0.0.5", "2"))
}

func TestChannels_KeywordFilter(t *testing.T) {
	b := &fakeBinder{values: map[string]string{
		"channels": `[{"id":"1","name":"Admin"},{"id":"2","name":"Professor View"}]`,
	}}
	svc := newTestService(testConfig(), b)

	previews := svc.GeneratePreviews(context.Background(), "sys-1", recordingModules())
	require.Len(t, previews, 1)
	assert.Equal(t, "2", previews[0].ChannelID)
	assert.Equal(t, "Professor View", previews[0].Label)
	assert.Equal(t, "mod-rec", previews[0].Module)
	assert.Equal(t, PreviewURL(domain, "10.0.0.5", "2"), previews[0].URL)

	require.Len(t, b.refs, 1)
	assert.Equal(t, placeos.ModuleRef{Name: "Recording", Index: 1}, b.refs[0])
}

func TestChannels_KeywordIsCaseInsensitiveAndOrderPreserved(t *testing.T) {
	b := &fakeBinder{values: map[string]string{
		"channels": `[{"id":5,"name":"WIDE VIEW"},{"id":"x","name":"Slides"},{"id":3,"name":"podium view"}]`,
	}}
	svc := newTestService(testConfig(), b)

	previews := svc.GeneratePreviews(context.Background(), "sys-1", recordingModules())
	require.Len(t, previews, 2)
	assert.Equal(t, "5", previews[0].ChannelID)
	assert.Equal(t, "3", previews[1].ChannelID)
}

func TestChannels_MalformedRecordSkipped(t *testing.T) {
	b := &fakeBinder{values: map[string]string{
		"channels": `[{"id":{"bad":true},"name":"Broken View"},{"name":"No Id View"},{"id":"7","name":"Room View"}]`,
	}}
	svc := newTestService(testConfig(), b)

	previews := svc.GeneratePreviews(context.Background(), "sys-1", recordingModules())
	require.Len(t, previews, 1)
	assert.Equal(t, "7", previews[0].ChannelID)
}

func TestChannels_TimeoutYieldsEmpty(t *testing.T) {
	b := &fakeBinder{}
	svc := newTestService(testConfig(), b)

	start := time.Now()
	previews := svc.GeneratePreviews(context.Background(), "sys-1", recordingModules())
	assert.NotNil(t, previews)
	assert.Empty(t, previews)
	assert.Less(t, time.Since(start), time.Second)
}

func TestChannels_NotAnArray(t *testing.T) {
	b := &fakeBinder{values: map[string]string{"channels": `"offline"`}}
	svc := newTestService(testConfig(), b)

	assert.Empty(t, svc.GeneratePreviews(context.Background(), "sys-1", recordingModules()))
}

func TestNoRecordingDevice(t *testing.T) {
	b := &fakeBinder{}
	svc := newTestService(testConfig(), b)

	previews := svc.GeneratePreviews(context.Background(), "sys-1", []data.Module{{ID: "mod-cam", Name: "Camera", IP: "10.0.0.9"}})
	assert.NotNil(t, previews)
	assert.Empty(t, previews)
	assert.Zero(t, b.callCount())
}

func TestRecordingDeviceWithoutAddress(t *testing.T) {
	b := &fakeBinder{}
	svc := newTestService(testConfig(), b)

	previews := svc.GeneratePreviews(context.Background(), "sys-1", []data.Module{{ID: "mod-rec", Name: "Recording"}})
	assert.Empty(t, previews)
	assert.Zero(t, b.callCount())
}

func TestAddressFromURI(t *testing.T) {
	b := &fakeBinder{values: map[string]string{"channels": `[{"id":"1","name":"Front View"}]`}}
	svc := newTestService(testConfig(), b)

	mods := []data.Module{{ID: "mod-rec", CustomName: "recording", URI: "https://192.168.4.20:8443/admin"}}
	previews := svc.GeneratePreviews(context.Background(), "sys-1", mods)
	require.Len(t, previews, 1)
	assert.Equal(t, PreviewURL(domain, "192.168.4.20", "1"), previews[0].URL)
}

func TestSelectRecordingModule(t *testing.T) {
	mods := []data.Module{
		{ID: "mod-a", Name: "Camera"},
		{ID: "Recording_1", Name: "Pearl Nano"},
		{ID: "mod-c", Name: "Recording"},
	}
	m, ok := SelectRecordingModule(mods, "Recording")
	require.True(t, ok)
	assert.Equal(t, "Recording_1", m.ID)

	_, ok = SelectRecordingModule(mods[:1], "Recording")
	assert.False(t, ok)
}

func TestNDI_ParallelChecksIsolateFailures(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy = "ndi"
	cfg.NDIInputs = 5
	b := &fakeBinder{
		values: map[string]string{
			"NDI1_video_status": `false`,
			"NDI2_video_status": `true`,
			"NDI4_video_status": `true`,
			"NDI5_video_status": `"garbage"`,
		},
		errs: map[string]error{"NDI3_video_status": errors.New("module offline")},
	}
	mods := []data.Module{{ID: "mod-rec", Name: "Recording", CustomName: "Pearl 2", IP: "10.0.0.5"}}
	svc := newTestService(cfg, b)

	previews := svc.GeneratePreviews(context.Background(), "sys-1", mods)
	require.Len(t, previews, 2)
	assert.Equal(t, 2, previews[0].Input)
	assert.Equal(t, 4, previews[1].Input)
	assert.Equal(t, "Pearl 2 - NDI2", previews[0].Label)
	assert.Equal(t, NDIPreviewURL(domain, "10.0.0.5", 4), previews[1].URL)
	assert.Equal(t, 5, b.callCount())
}

func TestNDI_SilentInputsAreBounded(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy = "ndi"
	b := &fakeBinder{}
	svc := newTestService(cfg, b)

	start := time.Now()
	previews := svc.GeneratePreviews(context.Background(), "sys-1", recordingModules())
	assert.Empty(t, previews)
	assert.Equal(t, MaxNDIInputs, b.callCount())
	// inputs are checked in parallel: total wait is close to one status timeout
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestUnknownStrategyFallsBack(t *testing.T) {
	s := NewStrategy("smoke-signals", Options{})
	assert.Equal(t, "channels", s.Name())
	assert.Equal(t, "ndi", NewStrategy(" NDI ", Options{}).Name())
}

func TestPreviewCache_LocalHit(t *testing.T) {
	b := &fakeBinder{values: map[string]string{"channels": `[{"id":"2","name":"Professor View"}]`}}
	cache := NewPreviewCache(8, time.Minute, nil, nil)
	svc := NewService(testConfig(), b, cache, nil, nil)

	first := svc.GeneratePreviews(context.Background(), "sys-1", recordingModules())
	second := svc.GeneratePreviews(context.Background(), "sys-1", recordingModules())
	assert.Equal(t, first, second)
	assert.Equal(t, 1, b.callCount())
}

func TestPreviewCache_Expires(t *testing.T) {
	cache := NewPreviewCache(8, time.Minute, nil, nil)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Put(context.Background(), "sys-1", []data.CameraPreview{{Module: "m", ChannelID: "1"}})
	_, ok := cache.Get(context.Background(), "sys-1")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = cache.Get(context.Background(), "sys-1")
	assert.False(t, ok)
}

func TestPreviewCache_SharedThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	a := NewPreviewCache(8, time.Minute, rdb, nil)
	b := NewPreviewCache(8, time.Minute, rdb, nil)

	a.Put(context.Background(), "sys-1", []data.CameraPreview{{Module: "mod-rec", ChannelID: "2", Label: "Professor View"}})
	got, ok := b.Get(context.Background(), "sys-1")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "Professor View", got[0].Label)
	assert.True(t, mr.Exists(redisKeyPrefix+"sys-1"))

	b.Invalidate(context.Background(), "sys-1")
	assert.False(t, mr.Exists(redisKeyPrefix+"sys-1"))
}

func TestPreviewCache_RedisDownIsAMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	c := NewPreviewCache(8, time.Minute, rdb, nil)
	c.Put(context.Background(), "sys-1", nil)
	c.local.Purge()
	_, ok := c.Get(context.Background(), "sys-1")
	assert.False(t, ok)
}

func TestReconfigure_SwitchesStrategyAndPurges(t *testing.T) {
	b := &fakeBinder{values: map[string]string{
		"channels":          `[{"id":"2","name":"Professor View"}]`,
		"NDI1_video_status": `true`,
	}}
	cache := NewPreviewCache(8, time.Minute, nil, nil)
	svc := NewService(testConfig(), b, cache, nil, nil)

	first := svc.GeneratePreviews(context.Background(), "sys-1", recordingModules())
	require.Len(t, first, 1)
	assert.Equal(t, "2", first[0].ChannelID)

	cfg := testConfig()
	cfg.Strategy = "ndi"
	cfg.NDIInputs = 1
	svc.Reconfigure(cfg)

	second := svc.GeneratePreviews(context.Background(), "sys-1", recordingModules())
	require.Len(t, second, 1)
	assert.Equal(t, 1, second[0].Input)
	assert.True(t, strings.Contains(second[0].URL, "inputs/NDI1/preview"))
}

func TestReconfigure_IgnoresRedisEntriesFromOldSettings(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	b := &fakeBinder{values: map[string]string{
		"channels": `[{"id":"1","name":"Professor View"},{"id":"2","name":"Wide Shot"}]`,
	}}
	svc := NewService(testConfig(), b, NewPreviewCache(8, 5*time.Minute, rdb, nil), nil, nil)

	first := svc.GeneratePreviews(context.Background(), "sys-1", recordingModules())
	require.Len(t, first, 1)
	assert.Equal(t, "Professor View", first[0].Label)

	cfg := testConfig()
	cfg.Keyword = "shot"
	cfg.ProxyDomain = "new.example.edu"
	svc.Reconfigure(cfg)

	second := svc.GeneratePreviews(context.Background(), "sys-1", recordingModules())
	require.Len(t, second, 1)
	assert.Equal(t, "Wide Shot", second[0].Label)
	assert.Equal(t, PreviewURL("new.example.edu", "10.0.0.5", "2"), second[0].URL)
	assert.Equal(t, 2, b.callCount())
}

func TestPreviewCache_ScopeSharedAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	b := &fakeBinder{values: map[string]string{"channels": `[{"id":"2","name":"Professor View"}]`}}
	a := NewService(testConfig(), b, NewPreviewCache(8, time.Minute, rdb, nil), nil, nil)
	other := NewService(testConfig(), b, NewPreviewCache(8, time.Minute, rdb, nil), nil, nil)

	a.GeneratePreviews(context.Background(), "sys-1", recordingModules())
	got := other.GeneratePreviews(context.Background(), "sys-1", recordingModules())
	require.Len(t, got, 1)
	assert.Equal(t, 1, b.callCount(), "same settings read the shared entry")
}

func TestService_Invalidate(t *testing.T) {
	b := &fakeBinder{values: map[string]string{"channels": `[{"id":"2","name":"Professor View"}]`}}
	svc := NewService(testConfig(), b, NewPreviewCache(8, time.Minute, nil, nil), nil, nil)

	svc.GeneratePreviews(context.Background(), "sys-1", recordingModules())
	svc.GeneratePreviews(context.Background(), "sys-1", recordingModules())
	require.Equal(t, 1, b.callCount())

	svc.Invalidate(context.Background(), "sys-1")
	svc.GeneratePreviews(context.Background(), "sys-1", recordingModules())
	assert.Equal(t, 2, b.callCount())
}
