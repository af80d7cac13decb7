// Package chat holds the QL-CHAT domain model and the typed operations
// the client can perform against the server.
package chat

// User is a chat participant. Participant lists are supplied wholesale
// by the server and never mutated locally.
type User struct {
	ID     string `json:"_id"`
	Name   string `json:"userName"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"pic,omitempty"`
}

// LatestMessage is the cached preview shown in the conversation list.
type LatestMessage struct {
	Sender  User   `json:"sender"`
	Content string `json:"content"`
}

// Conversation is a named group thread or a direct peer thread.
type Conversation struct {
	ID            string         `json:"_id"`
	Name          string         `json:"chatName"`
	IsGroup       bool           `json:"isGroupChat"`
	Participants  []User         `json:"users"`
	GroupAdmins   []User         `json:"groupAdmins,omitempty"`
	LatestMessage *LatestMessage `json:"latestMessage,omitempty"`
	UpdatedAt     string         `json:"updatedAt,omitempty"`
}

// ConversationRef is the minimal conversation echo embedded in each
// message.
type ConversationRef struct {
	ID           string `json:"_id"`
	Name         string `json:"chatName"`
	IsGroup      bool   `json:"isGroupChat"`
	Participants []User `json:"users,omitempty"`
}

// Message is immutable once created; there is no edit or delete.
type Message struct {
	ID           string          `json:"_id"`
	Sender       User            `json:"sender"`
	Content      string          `json:"content"`
	Conversation ConversationRef `json:"chat"`
}

// DisplayName returns the conversation name shown to selfName: the group
// name for group conversations, otherwise the other participant's name.
func (c Conversation) DisplayName(selfName string) string {
	if c.IsGroup {
		return c.Name
	}
	if other := otherParticipant(c.Participants, selfName); other != nil {
		return other.Name
	}
	return c.Name
}

// Other returns the peer of a direct conversation, or nil for groups.
func (c Conversation) Other(selfName string) *User {
	if c.IsGroup {
		return nil
	}
	return otherParticipant(c.Participants, selfName)
}

// DisplayName mirrors Conversation.DisplayName for the embedded echo.
func (c ConversationRef) DisplayName(selfName string) string {
	if c.IsGroup {
		return c.Name
	}
	if other := otherParticipant(c.Participants, selfName); other != nil {
		return other.Name
	}
	return c.Name
}

func otherParticipant(users []User, selfName string) *User {
	for i := range users {
		if users[i].Name != selfName {
			return &users[i]
		}
	}
	return nil
}
