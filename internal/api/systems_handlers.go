package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/technosupport/roomview/internal/cameras"
	"github.com/technosupport/roomview/internal/data"
	"github.com/technosupport/roomview/internal/discovery"
	"github.com/technosupport/roomview/internal/live"
	"github.com/technosupport/roomview/internal/placeos"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// systems resolved in parallel on one list page
	listConcurrency = 4
)

// Platform is the part of the platform client the handlers read from.
type Platform interface {
	QuerySystems(ctx context.Context, q data.SystemQuery) (*data.SystemPage, error)
	ShowSystem(ctx context.Context, id string) (*data.System, error)
	SystemModules(ctx context.Context, ids []string) []data.Module
}

// Previewer resolves camera previews and stream locations for a system.
type Previewer interface {
	GeneratePreviews(ctx context.Context, systemID string, modules []data.Module) []data.CameraPreview
	Invalidate(ctx context.Context, systemID string)
	StreamURL(systemID string, modules []data.Module, channelID string) (discovery.Target, string, bool)
}

type SystemsHandler struct {
	Platform  Platform
	Discovery Previewer
	PageSize  int
	Latency   live.LatencyPolicy
	Refresh   time.Duration
	Logger    *zap.Logger
	Now       func() time.Time
}

func NewSystemsHandler(platform Platform, previews Previewer, pageSize int, logger *zap.Logger) *SystemsHandler {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SystemsHandler{
		Platform:  platform,
		Discovery: previews,
		PageSize:  pageSize,
		Latency:   live.DefaultLatencyPolicy(),
		Refresh:   3 * time.Second,
		Logger:    logger,
		Now:       time.Now,
	}
}

// systemCard is one entry of the systems list.
type systemCard struct {
	data.SystemWithPreviews
	Grid cameras.GridSummary `json:"preview_grid"`
}

type systemsPage struct {
	Data   []systemCard `json:"data"`
	Total  int          `json:"total"`
	Offset int          `json:"offset"`
	Limit  int          `json:"limit"`
}

type moduleView struct {
	data.Module
	Status cameras.Status `json:"status"`
}

type systemDetail struct {
	System         data.System          `json:"system"`
	Modules        []moduleView         `json:"modules"`
	CameraModules  []data.Module        `json:"camera_modules"`
	SelectedCamera string               `json:"selected_camera,omitempty"`
	SelectedModule *data.Module         `json:"selected_module,omitempty"`
	SelectionQuery string               `json:"selection_query,omitempty"`
	CameraPreviews []data.CameraPreview `json:"camera_previews"`
}

// GET /api/v1/systems
func (h *SystemsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := h.PageSize
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxPageSize)
	}
	offset := 0
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "Invalid offset")
			return
		}
		offset = n
	}

	page, err := h.Platform.QuerySystems(r.Context(), data.SystemQuery{
		Features: data.FeatureRecording,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.Logger.Warn("Systems query failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "Failed to load systems")
		return
	}

	cards := make([]systemCard, len(page.Data))
	sem := make(chan struct{}, listConcurrency)
	var wg sync.WaitGroup
	for i := range page.Data {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			sys := page.Data[i]
			modules := h.Platform.SystemModules(r.Context(), sys.Modules)
			previews := h.refreshed(h.Discovery.GeneratePreviews(r.Context(), sys.ID, modules))
			cards[i] = systemCard{
				SystemWithPreviews: data.SystemWithPreviews{
					System:         sys,
					LoadedModules:  modules,
					CameraPreviews: previews,
				},
				Grid: cameras.Summarize(previews),
			}
		}(i)
	}
	wg.Wait()

	respondJSON(w, http.StatusOK, systemsPage{Data: cards, Total: page.Total, Offset: offset, Limit: limit})
}

// GET /api/v1/systems/{id}
func (h *SystemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	sys, modules, ok := h.loadSystem(w, r)
	if !ok {
		return
	}

	views := make([]moduleView, len(modules))
	for i, m := range modules {
		views[i] = moduleView{Module: m, Status: cameras.ModuleStatus(m)}
	}
	cams := cameras.FilterCameraModules(modules)
	selected := cameras.SelectFromQuery(r.URL.Query(), cams)

	detail := systemDetail{
		System:         *sys,
		Modules:        views,
		CameraModules:  cams,
		SelectedCamera: selected,
		SelectionQuery: cameras.SelectionQuery(selected).Encode(),
		CameraPreviews: h.refreshed(h.Discovery.GeneratePreviews(r.Context(), sys.ID, modules)),
	}
	// a camera param naming no camera module is echoed back without a module
	if m, ok := cameras.Find(cams, selected); ok {
		detail.SelectedModule = m
	}
	respondJSON(w, http.StatusOK, detail)
}

// GET /api/v1/systems/{id}/previews?refresh=true
//
// refresh skips the preview cache and rediscovers.
func (h *SystemsHandler) Previews(w http.ResponseWriter, r *http.Request) {
	sys, modules, ok := h.loadSystem(w, r)
	if !ok {
		return
	}
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		h.Discovery.Invalidate(r.Context(), sys.ID)
	}
	previews := h.refreshed(h.Discovery.GeneratePreviews(r.Context(), sys.ID, modules))
	respondJSON(w, http.StatusOK, map[string]any{
		"system_id":       sys.ID,
		"camera_previews": previews,
		"preview_grid":    cameras.Summarize(previews),
	})
}

// GET /api/v1/systems/{id}/stream?channel=
func (h *SystemsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	channel := strings.TrimSpace(r.URL.Query().Get("channel"))
	if channel == "" {
		respondError(w, http.StatusBadRequest, "Channel required")
		return
	}
	sys, modules, ok := h.loadSystem(w, r)
	if !ok {
		return
	}

	target, streamURL, ok := h.Discovery.StreamURL(sys.ID, modules, channel)
	if !ok {
		respondError(w, http.StatusNotFound, "No recording device")
		return
	}
	respondJSON(w, http.StatusOK, live.NewStreamDescriptor(sys.ID, target.Module.ID, channel, streamURL, h.Latency, h.Refresh))
}

// refreshed copies previews with their image URLs cache-busted for the
// current refresh interval. Cached slices are shared and stay untouched.
func (h *SystemsHandler) refreshed(previews []data.CameraPreview) []data.CameraPreview {
	now := h.Now()
	out := make([]data.CameraPreview, len(previews))
	for i, p := range previews {
		p.URL = live.CacheBust(p.URL, now, h.Refresh)
		out[i] = p
	}
	return out
}

// loadSystem fetches the system named in the path and its modules, writing
// the error response itself when it fails.
func (h *SystemsHandler) loadSystem(w http.ResponseWriter, r *http.Request) (*data.System, []data.Module, bool) {
	id := chi.URLParam(r, "id")
	sys, err := h.Platform.ShowSystem(r.Context(), id)
	switch {
	case errors.Is(err, placeos.ErrNotFound):
		respondError(w, http.StatusNotFound, "System not found")
		return nil, nil, false
	case err != nil:
		h.Logger.Warn("System lookup failed", zap.String("system", id), zap.Error(err))
		respondError(w, http.StatusBadGateway, "Failed to load system")
		return nil, nil, false
	}
	return sys, h.Platform.SystemModules(r.Context(), sys.Modules), true
}
