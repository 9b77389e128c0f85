package placeos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/technosupport/roomview/internal/data"
)

const apiPrefix = "/api/engine/v2"

var ErrNotFound = errors.New("placeos: not found")

// StatusError is returned for any non-2xx platform response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("placeos: status %d: %s", e.Status, e.Body)
}

// Client talks to the platform's REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// QuerySystems lists systems. The total comes from the X-Total-Count header
// and falls back to the page length.
func (c *Client) QuerySystems(ctx context.Context, q data.SystemQuery) (*data.SystemPage, error) {
	params := url.Values{}
	if q.Features != "" {
		params.Set("features", q.Features)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}

	var systems []data.System
	resp, err := c.do(ctx, http.MethodGet, "/systems?"+params.Encode(), nil, &systems)
	if err != nil {
		return nil, fmt.Errorf("query systems: %w", err)
	}

	total := len(systems)
	if n, err := strconv.Atoi(resp.Header.Get("X-Total-Count")); err == nil {
		total = n
	}
	return &data.SystemPage{Data: systems, Total: total}, nil
}

func (c *Client) ShowSystem(ctx context.Context, id string) (*data.System, error) {
	var sys data.System
	if _, err := c.do(ctx, http.MethodGet, "/systems/"+url.PathEscape(id), nil, &sys); err != nil {
		return nil, fmt.Errorf("show system %s: %w", id, err)
	}
	return &sys, nil
}

func (c *Client) ShowModule(ctx context.Context, id string) (*data.Module, error) {
	var mod data.Module
	if _, err := c.do(ctx, http.MethodGet, "/modules/"+url.PathEscape(id), nil, &mod); err != nil {
		return nil, fmt.Errorf("show module %s: %w", id, err)
	}
	return &mod, nil
}

// SystemModules fetches every module concurrently. Modules that fail to load
// are logged and dropped; input order is preserved for the rest.
func (c *Client) SystemModules(ctx context.Context, ids []string) []data.Module {
	results := make([]*data.Module, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			mod, err := c.ShowModule(ctx, id)
			if err != nil {
				c.logger.Warn("Module fetch failed", zap.String("module", id), zap.Error(err))
				return
			}
			results[i] = mod
		}(i, id)
	}
	wg.Wait()

	out := make([]data.Module, 0, len(ids))
	for _, m := range results {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out
}

// Execute invokes method on a system module with positional args and
// returns the raw JSON result.
func (c *Client) Execute(ctx context.Context, systemID string, ref ModuleRef, method string, args ...any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/systems/%s/%s/%s", url.PathEscape(systemID), url.PathEscape(ref.Slug()), url.PathEscape(method))

	var result json.RawMessage
	if _, err := c.do(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, fmt.Errorf("exec %s.%s: %w", ref.Slug(), method, err)
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return resp, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out != nil {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp, err
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			return resp, nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return resp, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp, nil
}

// ModuleRef addresses a module inside a system by class name and 1-based index,
// e.g. "Camera_2" is {Name: "Camera", Index: 2}, or directly by module id.
type ModuleRef struct {
	Name  string
	Index int
	ID    string
}

const moduleIDPrefix = "mod-"

// ParseModuleRef splits a "<Name>_<index>" slug. A name without a numeric
// suffix refers to index 1. Module ids ("mod-...") are kept whole.
func ParseModuleRef(s string) ModuleRef {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, moduleIDPrefix) {
		return ModuleRef{ID: s}
	}
	if i := strings.LastIndex(s, "_"); i > 0 && i < len(s)-1 {
		if n, err := strconv.Atoi(s[i+1:]); err == nil && n > 0 {
			return ModuleRef{Name: s[:i], Index: n}
		}
	}
	return ModuleRef{Name: s, Index: 1}
}

func (r ModuleRef) Slug() string {
	if r.ID != "" {
		return r.ID
	}
	idx := r.Index
	if idx <= 0 {
		idx = 1
	}
	return fmt.Sprintf("%s_%d", r.Name, idx)
}
