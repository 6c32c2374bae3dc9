// Package bot handles activities delivered to the bot's messaging endpoint.
package bot

import (
	"context"
	"strings"

	"github.com/pilab-dev/teams-collab/domain"
	"github.com/pilab-dev/teams-collab/internal/metrics"
	"github.com/pilab-dev/teams-collab/log"
	"github.com/pilab-dev/teams-collab/teams"
)

// ThreadKey returns the id the Teams client reports for the activity's
// conversation. Channel conversation ids carry a ";messageid=" suffix that
// the tab never sees.
func ThreadKey(a *teams.Activity) string {
	id := a.Conversation.ID
	if i := strings.Index(id, ";messageid="); i >= 0 {
		id = id[:i]
	}
	return id
}

// Ingestor stores a conversation reference for every activity the bot
// receives, so the tab can resolve its thread later.
type Ingestor struct {
	refs   domain.ConversationReferenceRepository
	botID  string
	logger log.Logger
}

func NewIngestor(refs domain.ConversationReferenceRepository, botID string, logger log.Logger) *Ingestor {
	return &Ingestor{refs: refs, botID: domain.BotAppID(botID), logger: logger}
}

// Thread returns the thread the tab reports for a's conversation. A 1:1
// chat is addressed by the tab as the synthesized personal chat id, not the
// Bot Framework conversation id, so notes and conversation values written
// from either side land under the same key.
func (i *Ingestor) Thread(a *teams.Activity) domain.Thread {
	if a.IsPersonal() && a.From.AADObjectID != "" {
		botID := i.botID
		if botID == "" {
			botID = domain.BotAppID(a.Recipient.ID)
		}
		return domain.Thread{ID: domain.PersonalThreadKey(a.From.AADObjectID, botID), Type: domain.ThreadPersonal}
	}
	typ, err := domain.ParseThreadType(a.Conversation.ConversationType)
	if err != nil {
		typ = domain.ThreadChat
	}
	return domain.Thread{ID: ThreadKey(a), Type: typ}
}

// Ingest writes the reference of a under its thread key. Personal
// conversations are also written under the sender's object id and under the
// id the tab reports for the 1:1 chat. Write failures are logged; the
// activity is still processed. It returns the number of keys written.
func (i *Ingestor) Ingest(ctx context.Context, a *teams.Activity) int {
	oid := a.From.AADObjectID
	if oid == "" {
		i.logger.Debug(ctx, "activity without aadObjectId, not stored", log.Fields{
			"activity_id": a.ID, "conversation_id": a.Conversation.ID,
		})
		metrics.ConversationReferencesWrittenTotal.WithLabelValues("skipped").Inc()
		return 0
	}

	ref := a.ConversationReference()
	keys := []string{ThreadKey(a)}
	if a.IsPersonal() {
		keys = append(keys, oid, i.Thread(a).ID)
	}

	written := 0
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := i.refs.Put(ctx, key, ref); err != nil {
			i.logger.Error(ctx, "failed to store conversation reference", err, log.Fields{"thread_key": key})
			metrics.ConversationReferencesWrittenTotal.WithLabelValues("error").Inc()
			continue
		}
		metrics.ConversationReferencesWrittenTotal.WithLabelValues("ok").Inc()
		written++
	}
	return written
}
