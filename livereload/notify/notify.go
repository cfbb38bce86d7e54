// Package notify defines the change notifications a development server
// pushes to the live-reload client, and the outcome records the client
// emits after acting on them. These types are the public contract between
// the client, its sinks and any consumer of the outcome stream.
package notify

// Type discriminates a notification.
type Type string

const (
	TypeReload Type = "reload" // full page reload
	TypeDiff   Type = "diff"   // a single resource changed
)

// Resource is the kind of file a diff notification refers to.
type Resource string

const (
	ResourceHTML Resource = "html"
	ResourceCSS  Resource = "css"
)

// Notification is one decoded frame. Resource and Path are only meaningful
// for TypeDiff. An empty Path counts as missing.
type Notification struct {
	Type     Type     `json:"type"`
	Resource Resource `json:"resource,omitempty"`
	Path     string   `json:"path,omitempty"`
}

// FromValue decodes a generic JSON value (as produced by encoding/json into
// an any) into a Notification. It reports false unless v is an object with
// a string "type". Non-string resource or path fields are treated as
// absent.
func FromValue(v any) (Notification, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Notification{}, false
	}
	typ, ok := obj["type"].(string)
	if !ok {
		return Notification{}, false
	}

	n := Notification{Type: Type(typ)}
	if res, ok := obj["resource"].(string); ok {
		n.Resource = Resource(res)
	}
	if p, ok := obj["path"].(string); ok {
		n.Path = p
	}
	return n, true
}

// Action is what the client did in response to a notification.
type Action string

const (
	ActionReload    Action = "reload"     // full reload issued
	ActionPatchHTML Action = "patch_html" // head/body merged in place
	ActionPatchCSS  Action = "patch_css"  // stylesheet hrefs refreshed
	ActionSkip      Action = "skip"       // html diff for another page
	ActionIgnore    Action = "ignore"     // unknown or malformed notification
)

// Outcome is emitted to sinks once per handled notification.
type Outcome struct {
	ID        string   `json:"id"` // UUIDv7
	Action    Action   `json:"action"`
	Trigger   Type     `json:"trigger,omitempty"`
	Resource  Resource `json:"resource,omitempty"`
	Path      string   `json:"path,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	Timestamp int64    `json:"timestamp"` // epoch milliseconds
}
