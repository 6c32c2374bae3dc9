package teams

import (
	"strings"

	"github.com/pilab-dev/teams-collab/domain"
)

const (
	ActivityTypeMessage            = "message"
	ActivityTypeConversationUpdate = "conversationUpdate"
	ActivityTypeInvoke             = "invoke"
)

// TenantInfo is the tenant block of Teams channel data.
type TenantInfo struct {
	ID string `json:"id"`
}

// TeamInfo is the team block of Teams channel data.
type TeamInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	AADGroupID string `json:"aadGroupId,omitempty"`
}

// ChannelInfo is the channel block of Teams channel data.
type ChannelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ChannelData is the Teams specific part of an activity.
type ChannelData struct {
	Tenant  *TenantInfo  `json:"tenant,omitempty"`
	Team    *TeamInfo    `json:"team,omitempty"`
	Channel *ChannelInfo `json:"channel,omitempty"`
}

// Activity is the subset of a Bot Framework activity the bot consumes and sends.
type Activity struct {
	Type         string                     `json:"type"`
	ID           string                     `json:"id,omitempty"`
	Timestamp    string                     `json:"timestamp,omitempty"`
	ServiceURL   string                     `json:"serviceUrl,omitempty"`
	ChannelID    string                     `json:"channelId,omitempty"`
	From         domain.ChannelAccount      `json:"from"`
	Recipient    domain.ChannelAccount      `json:"recipient"`
	Conversation domain.ConversationAccount `json:"conversation"`
	Text         string                     `json:"text,omitempty"`
	TextFormat   string                     `json:"textFormat,omitempty"`
	ReplyToID    string                     `json:"replyToId,omitempty"`
	ChannelData  *ChannelData               `json:"channelData,omitempty"`
}

// ConversationReference captures what is needed to message the activity's
// conversation later.
func (a *Activity) ConversationReference() *domain.ConversationReference {
	ref := &domain.ConversationReference{
		ActivityID:   a.ID,
		User:         a.From,
		Bot:          a.Recipient,
		Conversation: a.Conversation,
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
	}
	if a.ChannelData != nil {
		if a.ChannelData.Team != nil {
			ref.TeamID = a.ChannelData.Team.ID
		}
		if ref.Conversation.TenantID == "" && a.ChannelData.Tenant != nil {
			ref.Conversation.TenantID = a.ChannelData.Tenant.ID
		}
	}
	return ref
}

// TenantID returns the tenant the activity was sent from.
func (a *Activity) TenantID() string {
	if a.Conversation.TenantID != "" {
		return a.Conversation.TenantID
	}
	if a.ChannelData != nil && a.ChannelData.Tenant != nil {
		return a.ChannelData.Tenant.ID
	}
	return ""
}

// IsPersonal reports whether the activity comes from a one-to-one chat.
func (a *Activity) IsPersonal() bool {
	return strings.EqualFold(a.Conversation.ConversationType, "personal")
}

// PlainText returns the message text without bot mentions.
func (a *Activity) PlainText() string {
	text := a.Text
	for {
		start := strings.Index(text, "<at>")
		if start < 0 {
			break
		}
		end := strings.Index(text[start:], "</at>")
		if end < 0 {
			break
		}
		text = text[:start] + text[start+end+len("</at>"):]
	}
	return strings.TrimSpace(text)
}
