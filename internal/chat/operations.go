package chat

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/qlchat/qlchat-go/internal/graphql"
)

// GraphQL documents for every server operation the client depends on.
const (
	loginDoc = `mutation loginUser($email: String!, $password: String!) {
  login(email: $email, password: $password) {
    user { _id userName email pic }
    token
  }
}`

	signupDoc = `mutation signupUser($userName: String!, $email: String!, $password: String!) {
  signup(userName: $userName, email: $email, password: $password) {
    user { _id userName email }
  }
}`

	conversationsDoc = `query fetchChats {
  fetchChats {
    _id
    chatName
    latestMessage {
      sender { _id userName email pic }
      content
    }
    users { _id userName email pic }
    groupAdmins { _id userName email pic }
    updatedAt
    isGroupChat
  }
}`

	historyDoc = `query fetchSingleChatMessages($chatId: ID!) {
  fetchSingleChatMessages(chatId: $chatId) {
    _id
    sender { _id userName email pic }
    content
    chat {
      _id
      chatName
      isGroupChat
      users { _id userName email pic }
    }
  }
}`

	sendDoc = `mutation sendMessage($chatId: ID!, $content: String!) {
  sendMessage(chatId: $chatId, content: $content) {
    _id
    sender { _id userName email pic }
    content
    chat { _id chatName isGroupChat }
  }
}`

	addParticipantDoc = `mutation addUserToGroupChat($chatId: ID!, $userId: ID!) {
  addUserToGroupChat(chatId: $chatId, userId: $userId) {
    _id
    chatName
    isGroupChat
    users { _id userName email pic }
    groupAdmins { _id userName email pic }
  }
}`

	searchUsersDoc = `query searchUsers($query: String!) {
  searchUsers(query: $query) {
    _id
    userName
    email
    pic
  }
}`

	messageAddedDoc = `subscription onMessageAdded($chatId: ID!) {
  messageAdded(chatId: $chatId) {
    _id
    sender { _id userName email pic }
    content
    chat { _id chatName isGroupChat }
  }
}`
)

// Client performs typed QL-CHAT operations over the GraphQL transports.
type Client struct {
	gql  *graphql.Client
	subs *graphql.Subscriber
	log  zerolog.Logger
}

// NewClient wraps the transports in a typed API.
func NewClient(gql *graphql.Client, subs *graphql.Subscriber, log zerolog.Logger) *Client {
	return &Client{gql: gql, subs: subs, log: log}
}

// Login exchanges credentials for a bearer token and the signed-in user.
func (c *Client) Login(ctx context.Context, email, password string) (string, User, error) {
	var out struct {
		Login struct {
			User  User   `json:"user"`
			Token string `json:"token"`
		} `json:"login"`
	}
	err := c.gql.Do(ctx, loginDoc, map[string]any{"email": email, "password": password}, &out)
	if err != nil {
		return "", User{}, err
	}
	return out.Login.Token, out.Login.User, nil
}

// Signup registers a new account. The caller logs in afterwards.
func (c *Client) Signup(ctx context.Context, name, email, password string) (User, error) {
	var out struct {
		Signup struct {
			User User `json:"user"`
		} `json:"signup"`
	}
	err := c.gql.Do(ctx, signupDoc, map[string]any{
		"userName": name,
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return User{}, err
	}
	return out.Signup.User, nil
}

// Conversations fetches every conversation visible to the session.
func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var out struct {
		Conversations []Conversation `json:"fetchChats"`
	}
	if err := c.gql.Do(ctx, conversationsDoc, nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// History fetches the full current message history of a conversation,
// oldest first. Conversation metadata rides along on each message.
func (c *Client) History(ctx context.Context, conversationID string) ([]Message, error) {
	var out struct {
		Messages []Message `json:"fetchSingleChatMessages"`
	}
	err := c.gql.Do(ctx, historyDoc, map[string]any{"chatId": conversationID}, &out)
	if err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Send submits a new message. Content that is empty after trimming is
// rejected here, before any network round-trip.
func (c *Client) Send(ctx context.Context, conversationID, content string) (Message, error) {
	if strings.TrimSpace(content) == "" {
		return Message{}, graphql.Validation("message content is empty")
	}
	var out struct {
		Message Message `json:"sendMessage"`
	}
	err := c.gql.Do(ctx, sendDoc, map[string]any{
		"chatId":  conversationID,
		"content": content,
	}, &out)
	if err != nil {
		return Message{}, err
	}
	return out.Message, nil
}

// AddParticipant adds a user to a group conversation and returns the
// updated metadata as the server computed it.
func (c *Client) AddParticipant(ctx context.Context, conversationID, userID string) (Conversation, error) {
	var out struct {
		Conversation Conversation `json:"addUserToGroupChat"`
	}
	err := c.gql.Do(ctx, addParticipantDoc, map[string]any{
		"chatId": conversationID,
		"userId": userID,
	}, &out)
	if err != nil {
		return Conversation{}, err
	}
	return out.Conversation, nil
}

// SearchUsers finds participants by free-text term.
func (c *Client) SearchUsers(ctx context.Context, term string) ([]User, error) {
	var out struct {
		Users []User `json:"searchUsers"`
	}
	if err := c.gql.Do(ctx, searchUsersDoc, map[string]any{"query": term}, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}
