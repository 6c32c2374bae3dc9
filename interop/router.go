package interop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pilab-dev/teams-collab/domain"
	"github.com/pilab-dev/teams-collab/internal/metrics"
	"github.com/pilab-dev/teams-collab/log"
	"github.com/pilab-dev/teams-collab/storage"
	"github.com/pilab-dev/teams-collab/teams"
)

// ActionCall is what an action handler receives.
type ActionCall struct {
	Caller *domain.Principal
	Thread domain.Thread
	Data   json.RawMessage
}

// ActionHandler serves one named action. The returned value becomes the
// data of the bridge response.
type ActionHandler func(ctx context.Context, call ActionCall) (any, error)

// ValueStore is the scoped value store the router reads and writes.
type ValueStore interface {
	Get(ctx context.Context, ref storage.Ref) (*storage.Values, error)
	Set(ctx context.Context, ref storage.Ref, scope storage.Scope, changes map[string]storage.Change) (*storage.SetResult, error)
}

// RosterClient reads the bot's view of conversation membership.
type RosterClient interface {
	GetPagedMembers(ctx context.Context, serviceURL, conversationID, continuationToken string, pageSize int) (*teams.PagedMembers, error)
}

// DirectoryClient reads membership and consent grants from Graph.
type DirectoryClient interface {
	ChatMembers(ctx context.Context, tenantID, chatID string) ([]teams.GraphMember, error)
	ChannelMembers(ctx context.Context, tenantID, teamID, channelID string) ([]teams.GraphMember, error)
	ChatPermissionGrants(ctx context.Context, tenantID, chatID, clientAppID string) ([]teams.PermissionGrant, error)
	TeamPermissionGrants(ctx context.Context, tenantID, teamID, clientAppID string) ([]teams.PermissionGrant, error)
}

// RouterConfig holds the router's collaborators.
type RouterConfig struct {
	Values    ValueStore
	Refs      domain.ConversationReferenceRepository
	Roster    RosterClient
	Directory DirectoryClient
	// AppID is the client app whose consent grants are reported.
	AppID  string
	Logger log.Logger
}

// Router dispatches bridge requests. Actions are registered explicitly with
// Handle before the router starts serving.
type Router struct {
	cfg RouterConfig

	mu      sync.RWMutex
	actions map[string]ActionHandler
}

// NewRouter creates a Router with no actions registered.
func NewRouter(cfg RouterConfig) *Router {
	return &Router{cfg: cfg, actions: map[string]ActionHandler{}}
}

// Handle registers h for the action name, replacing any earlier handler.
func (r *Router) Handle(name string, h ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = h
}

// Actions returns the registered action names.
func (r *Router) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	return names
}

// Serve parses body and dispatches it.
func (r *Router) Serve(ctx context.Context, caller *domain.Principal, body []byte) (any, error) {
	req, err := ParseRequest(body)
	if err != nil {
		metrics.BridgeRequestsTotal.WithLabelValues("invalid", "rejected").Inc()
		return nil, err
	}
	return r.Dispatch(ctx, caller, req)
}

// Dispatch runs req on behalf of caller.
func (r *Router) Dispatch(ctx context.Context, caller *domain.Principal, req Request) (any, error) {
	if req.Thread().ID == "" {
		return nil, ErrMissingThread
	}
	if caller == nil {
		return nil, errors.New("dispatch without caller")
	}

	var (
		out any
		err error
	)
	switch req := req.(type) {
	case ActionRequest:
		out, err = r.action(ctx, caller, req)
	case SetValueRequest:
		err = r.setValue(ctx, caller, req)
	case GetValuesRequest:
		out, err = r.getValues(ctx, caller, req)
	case GetPagedRosterRequest:
		out, err = r.pagedRoster(ctx, req)
	case GetGraphRosterRequest:
		out, err = r.graphRoster(ctx, req)
	case GetRSCPermissionsRequest:
		out, err = r.rscPermissions(ctx, req)
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownType, req)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if r.cfg.Logger != nil {
			r.cfg.Logger.Debug(ctx, "bridge request failed", log.Fields{
				"type": req.Type(), "thread_id": req.Thread().ID, "error": err.Error(),
			})
		}
	}
	metrics.BridgeRequestsTotal.WithLabelValues(req.Type(), outcome).Inc()
	return out, err
}

func (r *Router) action(ctx context.Context, caller *domain.Principal, req ActionRequest) (any, error) {
	r.mu.RLock()
	h, ok := r.actions[req.Action.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action.Type)
	}
	return h(ctx, ActionCall{Caller: caller, Thread: req.Thread(), Data: req.Action.CustomData})
}

func (r *Router) setValue(ctx context.Context, caller *domain.Principal, req SetValueRequest) error {
	result, err := r.cfg.Values.Set(ctx, valueRef(caller, req.Thread()), req.Scope, map[string]storage.Change{
		req.Key: {Value: req.Value, Version: req.Version},
	})
	if err != nil {
		return err
	}
	return result.Err()
}

func (r *Router) getValues(ctx context.Context, caller *domain.Principal, req GetValuesRequest) (*storage.Values, error) {
	return r.cfg.Values.Get(ctx, valueRef(caller, req.Thread()))
}

// PagedRoster is the get-paged-roster response.
type PagedRoster struct {
	ContinuationToken string                      `json:"continuationToken"`
	Members           []teams.TeamsChannelAccount `json:"members"`
}

// GraphRoster is the get-graph-roster response.
type GraphRoster struct {
	Value []teams.GraphMember `json:"value"`
}

func (r *Router) pagedRoster(ctx context.Context, req GetPagedRosterRequest) (*PagedRoster, error) {
	ref, err := r.reference(ctx, req.Thread())
	if err != nil {
		return nil, err
	}
	page, err := r.cfg.Roster.GetPagedMembers(ctx, ref.ServiceURL, ref.Conversation.ID, req.ContinuationToken, req.PageSize)
	if err != nil {
		return nil, upstream(err)
	}
	return &PagedRoster{ContinuationToken: page.ContinuationToken, Members: page.Members}, nil
}

func (r *Router) graphRoster(ctx context.Context, req GetGraphRosterRequest) (*GraphRoster, error) {
	thread := req.Thread()
	ref, err := r.reference(ctx, thread)
	if err != nil {
		return nil, err
	}

	var members []teams.GraphMember
	if thread.Type == domain.ThreadChannel {
		if ref.TeamID == "" {
			return nil, internal(fmt.Errorf("channel %s has no team id", thread.ID))
		}
		members, err = r.cfg.Directory.ChannelMembers(ctx, ref.Conversation.TenantID, ref.TeamID, thread.ID)
	} else {
		members, err = r.cfg.Directory.ChatMembers(ctx, ref.Conversation.TenantID, thread.ID)
	}
	if err != nil {
		return nil, upstream(err)
	}
	return &GraphRoster{Value: members}, nil
}

func (r *Router) rscPermissions(ctx context.Context, req GetRSCPermissionsRequest) ([]teams.PermissionGrant, error) {
	thread := req.Thread()
	ref, err := r.reference(ctx, thread)
	if err != nil {
		return nil, err
	}

	var grants []teams.PermissionGrant
	if thread.Type == domain.ThreadChannel {
		if ref.TeamID == "" {
			return nil, internal(fmt.Errorf("channel %s has no team id", thread.ID))
		}
		grants, err = r.cfg.Directory.TeamPermissionGrants(ctx, ref.Conversation.TenantID, ref.TeamID, r.cfg.AppID)
	} else {
		grants, err = r.cfg.Directory.ChatPermissionGrants(ctx, ref.Conversation.TenantID, thread.ID, r.cfg.AppID)
	}
	if err != nil {
		return nil, upstream(err)
	}
	return grants, nil
}

// reference loads the stored conversation of thread. The tab only runs in
// threads the bot has seen, so a miss is an internal error.
func (r *Router) reference(ctx context.Context, thread domain.Thread) (*domain.ConversationReference, error) {
	ref, err := r.cfg.Refs.Get(ctx, thread.ID)
	if err != nil {
		return nil, internal(fmt.Errorf("conversation reference for %s: %w", thread.ID, err))
	}
	return ref, nil
}

// upstream marks malformed upstream answers as internal errors.
func upstream(err error) error {
	if errors.Is(err, teams.ErrUpstreamShape) {
		return internal(err)
	}
	return err
}

func valueRef(caller *domain.Principal, thread domain.Thread) storage.Ref {
	return storage.Ref{UserID: caller.UserKey(), ConversationID: thread.ID}
}
