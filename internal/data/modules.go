package data

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Module is an addressable device attached to a System (camera, encoder, etc).
type Module struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	CustomName      string `json:"custom_name,omitempty"`
	ControlSystemID string `json:"control_system_id,omitempty"`
	DriverID        string `json:"driver_id,omitempty"`
	EdgeID          string `json:"edge_id,omitempty"`
	IP              string `json:"ip,omitempty"`
	Port            int    `json:"port,omitempty"`
	Role            *int   `json:"role,omitempty"`
	URI             string `json:"uri,omitempty"`
	Notes           string `json:"notes,omitempty"`
	TLS             bool   `json:"tls,omitempty"`
	UDP             bool   `json:"udp,omitempty"`

	Connected       *bool `json:"connected,omitempty"`
	Running         *bool `json:"running,omitempty"`
	HasRuntimeError bool  `json:"has_runtime_error,omitempty"`
	ErrorTimestamp  int64 `json:"error_timestamp,omitempty"`
	IgnoreConnected bool  `json:"ignore_connected,omitempty"`
	CreatedAt       int64 `json:"created_at,omitempty"`
	UpdatedAt       int64 `json:"updated_at,omitempty"`
	Version         int   `json:"version,omitempty"`
}

// DisplayName prefers the operator-assigned name.
func (m *Module) DisplayName() string {
	if m.CustomName != "" {
		return m.CustomName
	}
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// Address resolves the network host of the module: the ip field if set,
// otherwise the host component of uri. Returns "" when neither is usable.
func (m *Module) Address() string {
	if ip := strings.TrimSpace(m.IP); ip != "" {
		return ip
	}
	raw := strings.TrimSpace(m.URI)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// ChannelRecord is one entry of an encoder's "channels" state.
type ChannelRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UnmarshalJSON accepts numeric or string channel ids.
func (c *ChannelRecord) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID   json.RawMessage `json:"id"`
		Name string          `json:"name"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	c.Name = raw.Name
	c.ID = ""
	if len(raw.ID) == 0 || string(raw.ID) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.ID, &s); err == nil {
		c.ID = s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw.ID, &n); err != nil {
		return err
	}
	c.ID = n.String()
	return nil
}
