package domain

import (
	"fmt"
	"strings"
)

// ThreadType is the canonical conversation surface kind shared by the bot and the tab.
type ThreadType string

const (
	ThreadPersonal ThreadType = "personal"
	ThreadChat     ThreadType = "chat"
	ThreadChannel  ThreadType = "channel"
)

// ParseThreadType maps Bot Framework and Teams client conversation types onto ThreadType.
func ParseThreadType(s string) (ThreadType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "personal":
		return ThreadPersonal, nil
	case "chat", "groupchat", "meeting":
		return ThreadChat, nil
	case "channel", "team":
		return ThreadChannel, nil
	}
	return "", fmt.Errorf("unknown thread type %q", s)
}

// Thread identifies one conversation surface.
type Thread struct {
	ID   string     `json:"threadId"`
	Type ThreadType `json:"threadType"`
}

// ChannelAccount is a Bot Framework participant.
type ChannelAccount struct {
	ID          string `bson:"id" json:"id"`
	Name        string `bson:"name,omitempty" json:"name,omitempty"`
	AADObjectID string `bson:"aad_object_id,omitempty" json:"aadObjectId,omitempty"`
	Role        string `bson:"role,omitempty" json:"role,omitempty"`
}

// ConversationAccount is the Bot Framework conversation descriptor.
type ConversationAccount struct {
	ID               string `bson:"id" json:"id"`
	ConversationType string `bson:"conversation_type,omitempty" json:"conversationType,omitempty"`
	TenantID         string `bson:"tenant_id,omitempty" json:"tenantId,omitempty"`
	IsGroup          bool   `bson:"is_group,omitempty" json:"isGroup,omitempty"`
	Name             string `bson:"name,omitempty" json:"name,omitempty"`
}

// ConversationReference is the resume handle used for proactive messages.
type ConversationReference struct {
	ActivityID   string              `bson:"activity_id,omitempty" json:"activityId,omitempty"`
	User         ChannelAccount      `bson:"user" json:"user"`
	Bot          ChannelAccount      `bson:"bot" json:"bot"`
	Conversation ConversationAccount `bson:"conversation" json:"conversation"`
	ChannelID    string              `bson:"channel_id" json:"channelId"`
	ServiceURL   string              `bson:"service_url" json:"serviceUrl"`
	// TeamID is set for channel conversations; Graph addresses channels through their team.
	TeamID string `bson:"team_id,omitempty" json:"teamId,omitempty"`
}

// BotAppID strips the "28:" channel prefix Teams puts in front of a bot's
// app id in activities.
func BotAppID(id string) string {
	return strings.TrimPrefix(strings.TrimSpace(id), "28:")
}

// PersonalThreadKey is the id the Teams client reports for a 1:1 chat with the bot.
func PersonalThreadKey(userID, botID string) string {
	return fmt.Sprintf("19:%s_%s@unq.gbl.spaces", userID, BotAppID(botID))
}
