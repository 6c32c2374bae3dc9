package sssogin

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pilab-dev/teams-collab/domain"
	"github.com/pilab-dev/teams-collab/notes"
	"github.com/pilab-dev/teams-collab/services"
)

type createNoteRequest struct {
	Text     string `json:"text"`
	Color    string `json:"color"`
	ThreadID string `json:"threadId"`
}

// ListNotesHandler lists the notes of a thread, or the caller's own notes
// when no threadId is given.
func (a *API) ListNotesHandler(c *gin.Context) {
	filter := domain.NoteFilter{ThreadID: c.Query("threadId")}
	if filter.ThreadID == "" || c.Query("mine") == "true" {
		filter.Owner = principalFrom(c).Owner()
	}

	list, err := a.opts.Notes.List(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, list)
}

func (a *API) CreateNoteHandler(c *gin.Context) {
	var req createNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", services.ErrInvalidInput, err))
		return
	}
	principal := principalFrom(c)

	note, err := a.opts.Notes.Create(c.Request.Context(), notes.NewNote{
		Text:       req.Text,
		Color:      req.Color,
		ThreadID:   req.ThreadID,
		Owner:      principal.Owner(),
		AuthorName: principal.Email,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, note)
}

func (a *API) GetNoteHandler(c *gin.Context) {
	note, err := a.opts.Notes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, note)
}

func (a *API) UpdateNoteHandler(c *gin.Context) {
	var upd notes.NoteUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", services.ErrInvalidInput, err))
		return
	}

	note, err := a.opts.Notes.Update(c.Request.Context(), c.Param("id"), principalFrom(c).Owner(), upd)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, note)
}

func (a *API) DeleteNoteHandler(c *gin.Context) {
	id := c.Param("id")
	if err := a.opts.Notes.Delete(c.Request.Context(), id, principalFrom(c).Owner()); err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}
