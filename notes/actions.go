package notes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/pilab-dev/teams-collab/domain"
	"github.com/pilab-dev/teams-collab/interop"
)

// Bridge action names.
const (
	ActionCreate = "create-note"
	ActionList   = "list-notes"
	ActionUpdate = "update-note"
	ActionDelete = "delete-note"
)

type createData struct {
	Text  string `json:"text"`
	Color string `json:"color,omitempty"`
}

type updateData struct {
	ID    string  `json:"id"`
	Text  *string `json:"text,omitempty"`
	Color *string `json:"color,omitempty"`
}

type deleteData struct {
	ID string `json:"id"`
}

// RegisterActions registers the note actions on r. Notes created through
// the bridge belong to the calling thread and are owned by the caller's
// account and Entra object id, the same pair the bot records.
func RegisterActions(r *interop.Router, svc *Service) {
	r.Handle(ActionCreate, func(ctx context.Context, call interop.ActionCall) (any, error) {
		var in createData
		if err := decodeData(call.Data, &in); err != nil {
			return nil, err
		}
		return svc.Create(ctx, NewNote{
			Text:       in.Text,
			Color:      in.Color,
			ThreadID:   call.Thread.ID,
			Owner:      call.Caller.Owner(),
			AuthorName: call.Caller.Email,
		})
	})

	r.Handle(ActionList, func(ctx context.Context, call interop.ActionCall) (any, error) {
		return svc.List(ctx, domain.NoteFilter{ThreadID: call.Thread.ID})
	})

	r.Handle(ActionUpdate, func(ctx context.Context, call interop.ActionCall) (any, error) {
		var in updateData
		if err := decodeData(call.Data, &in); err != nil {
			return nil, err
		}
		if in.ID == "" {
			return nil, fmt.Errorf("%w: id is required", interop.ErrInvalidRequest)
		}
		return svc.Update(ctx, in.ID, call.Caller.Owner(), NoteUpdate{Text: in.Text, Color: in.Color})
	})

	r.Handle(ActionDelete, func(ctx context.Context, call interop.ActionCall) (any, error) {
		var in deleteData
		if err := decodeData(call.Data, &in); err != nil {
			return nil, err
		}
		if in.ID == "" {
			return nil, fmt.Errorf("%w: id is required", interop.ErrInvalidRequest)
		}
		if err := svc.Delete(ctx, in.ID, call.Caller.Owner()); err != nil {
			return nil, err
		}
		return map[string]string{"id": in.ID}, nil
	})
}

func decodeData(data json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: customData: %v", interop.ErrInvalidRequest, err)
	}
	return nil
}
