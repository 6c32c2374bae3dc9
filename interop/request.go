package interop

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pilab-dev/teams-collab/domain"
	"github.com/pilab-dev/teams-collab/storage"
)

// Request types accepted by the bridge.
const (
	TypeAction            = "action"
	TypeSetValue          = "set-value"
	TypeGetValues         = "get-values"
	TypeGetPagedRoster    = "get-paged-roster"
	TypeGetGraphRoster    = "get-graph-roster"
	TypeGetRSCPermissions = "get-rsc-permissions"
)

// Request is one of the bridge request variants. The set is closed.
type Request interface {
	Type() string
	Thread() domain.Thread
}

type threaded struct {
	thread domain.Thread
}

func (t threaded) Thread() domain.Thread { return t.thread }

// Action names a registered action and carries its payload.
type Action struct {
	Type       string          `json:"type"`
	CustomData json.RawMessage `json:"customData"`
}

type ActionRequest struct {
	threaded
	Action Action
}

type SetValueRequest struct {
	threaded
	Scope   storage.Scope
	Key     string
	Value   json.RawMessage
	Version string
}

type GetValuesRequest struct{ threaded }

type GetPagedRosterRequest struct {
	threaded
	ContinuationToken string
	PageSize          int
}

type GetGraphRosterRequest struct{ threaded }

type GetRSCPermissionsRequest struct{ threaded }

func (ActionRequest) Type() string            { return TypeAction }
func (SetValueRequest) Type() string          { return TypeSetValue }
func (GetValuesRequest) Type() string         { return TypeGetValues }
func (GetPagedRosterRequest) Type() string    { return TypeGetPagedRoster }
func (GetGraphRosterRequest) Type() string    { return TypeGetGraphRoster }
func (GetRSCPermissionsRequest) Type() string { return TypeGetRSCPermissions }

// envelope holds the fields every variant shares.
type envelope struct {
	Type       string `json:"type"`
	ThreadID   string `json:"threadId"`
	ThreadType string `json:"threadType"`
}

type actionWire struct {
	envelope
	Action *Action `json:"action"`
}

type setValueWire struct {
	envelope
	Scope   string          `json:"scope"`
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value"`
	Version string          `json:"version,omitempty"`
}

type pagedRosterWire struct {
	envelope
	ContinuationToken string `json:"continuationToken,omitempty"`
	PageSize          int    `json:"pageSize,omitempty"`
}

// ParseRequest decodes body into exactly one request variant, selected by
// its type field. Unknown types, unknown fields and missing required fields
// are rejected, as is a request without a thread.
func ParseRequest(body []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	switch env.Type {
	case TypeAction:
		var w actionWire
		if err := decodeStrict(body, &w); err != nil {
			return nil, err
		}
		thread, err := resolveThread(w.envelope)
		if err != nil {
			return nil, err
		}
		if w.Action == nil || w.Action.Type == "" {
			return nil, fmt.Errorf("%w: action.type is required", ErrInvalidRequest)
		}
		if len(w.Action.CustomData) == 0 {
			return nil, fmt.Errorf("%w: action.customData is required", ErrInvalidRequest)
		}
		return ActionRequest{threaded: threaded{thread}, Action: *w.Action}, nil

	case TypeSetValue:
		var w setValueWire
		if err := decodeStrict(body, &w); err != nil {
			return nil, err
		}
		thread, err := resolveThread(w.envelope)
		if err != nil {
			return nil, err
		}
		scope, err := storage.ParseScope(w.Scope)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		if w.Key == "" {
			return nil, fmt.Errorf("%w: key is required", ErrInvalidRequest)
		}
		if len(w.Value) == 0 {
			return nil, fmt.Errorf("%w: value is required", ErrInvalidRequest)
		}
		return SetValueRequest{threaded: threaded{thread}, Scope: scope, Key: w.Key, Value: w.Value, Version: w.Version}, nil

	case TypeGetPagedRoster:
		var w pagedRosterWire
		if err := decodeStrict(body, &w); err != nil {
			return nil, err
		}
		thread, err := resolveThread(w.envelope)
		if err != nil {
			return nil, err
		}
		if w.PageSize < 0 {
			return nil, fmt.Errorf("%w: pageSize must not be negative", ErrInvalidRequest)
		}
		return GetPagedRosterRequest{threaded: threaded{thread}, ContinuationToken: w.ContinuationToken, PageSize: w.PageSize}, nil

	case TypeGetValues, TypeGetGraphRoster, TypeGetRSCPermissions:
		var w envelope
		if err := decodeStrict(body, &w); err != nil {
			return nil, err
		}
		thread, err := resolveThread(w)
		if err != nil {
			return nil, err
		}
		switch env.Type {
		case TypeGetValues:
			return GetValuesRequest{threaded{thread}}, nil
		case TypeGetGraphRoster:
			return GetGraphRosterRequest{threaded{thread}}, nil
		default:
			return GetRSCPermissionsRequest{threaded{thread}}, nil
		}
	}

	if env.Type == "" {
		return nil, fmt.Errorf("%w: type is required", ErrInvalidRequest)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

func decodeStrict(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after request", ErrInvalidRequest)
	}
	return nil
}

func resolveThread(env envelope) (domain.Thread, error) {
	if env.ThreadID == "" {
		return domain.Thread{}, ErrMissingThread
	}
	tt, err := domain.ParseThreadType(env.ThreadType)
	if err != nil {
		return domain.Thread{}, fmt.Errorf("%w: %v", ErrMissingThread, err)
	}
	return domain.Thread{ID: env.ThreadID, Type: tt}, nil
}
