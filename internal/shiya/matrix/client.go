// Package matrix provides the Matrix gateway for Shiya: the sync loop,
// conversion of room events into dispatch events, and the small send
// surface the bot needs (replies and typing indicators).
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/shiya-bot/shiya/internal/shiya/dispatch"
)

// Config holds Matrix client configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms is an optional allowlist of room IDs the bot responds in.
	// Empty means every joined room.
	Rooms []string
	// DB is an optional SQLite connection used to persist the Matrix sync
	// token (next_batch) across restarts. When nil, an in-memory store is
	// used and all room history will be replayed on every restart.
	DB *sql.DB
}

// Client wraps the Matrix client.
type Client struct {
	client     *mautrix.Client
	config     *Config
	stopCh     chan struct{}
	msgHandler MessageHandler

	namesMu sync.Mutex
	names   map[string]string // user ID -> cached display name
}

// MessageHandler processes one incoming room message, already converted to
// a dispatch event.
type MessageHandler func(ctx context.Context, ev *dispatch.Event)

// New creates a new Matrix client.
func New(config *Config) (*Client, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}

	c := &Client{
		client: client,
		config: config,
		stopCh: make(chan struct{}),
		names:  make(map[string]string),
	}

	// Attach a persistent sync store so the bot resumes from the last known
	// position after a restart instead of replaying the full room history.
	if config.DB != nil {
		client.Store = newDBSyncStore(config.DB)
		slog.Info("Matrix sync store: using persistent SQLite store")
	} else {
		slog.Warn("Matrix sync store: no DB configured, using in-memory store (history will replay on restart)")
	}

	return c, nil
}

// Start begins syncing with the Matrix homeserver.
func (c *Client) Start(ctx context.Context, handler MessageHandler) error {
	c.msgHandler = handler

	syncer := c.client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, c.handleMessage)

	for _, roomID := range c.config.Rooms {
		if err := c.joinRoom(id.RoomID(roomID)); err != nil {
			return fmt.Errorf("failed to join room %s: %w", roomID, err)
		}
	}

	// Start syncing in background with exponential back-off reconnection.
	// Without retries a transient homeserver error would silently kill the
	// sync goroutine and leave the bot deaf to all new messages.
	go func() {
		const (
			backoffMin = 2 * time.Second
			backoffMax = 5 * time.Minute
		)
		backoff := backoffMin
		for {
			backoff = backoffMin // reset before each attempt
			if err := c.client.Sync(); err != nil {
				select {
				case <-c.stopCh:
					return
				default:
				}
				slog.Error("Matrix sync stopped; reconnecting", "err", err, "backoff", backoff)
				select {
				case <-c.stopCh:
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if backoff > backoffMax {
					backoff = backoffMax
				}
				continue
			}
			// Sync returned nil — only happens on a clean StopSync() call.
			return
		}
	}()

	return nil
}

// Stop stops the Matrix client.
func (c *Client) Stop() {
	close(c.stopCh)
	c.client.StopSync()
}

// ReplyToMessage sends a reply to a specific message.
func (c *Client) ReplyToMessage(roomID, eventID, message string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    message,
		RelatesTo: &event.RelatesTo{
			InReplyTo: &event.InReplyTo{
				EventID: id.EventID(eventID),
			},
		},
	}

	_, err := c.client.SendMessageEvent(context.Background(), id.RoomID(roomID), event.EventMessage, &content)
	if err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

// SetTyping sets the typing indicator in a room.
func (c *Client) SetTyping(roomID string, typing bool, timeout time.Duration) error {
	_, err := c.client.UserTyping(context.Background(), id.RoomID(roomID), typing, timeout)
	if err != nil {
		return fmt.Errorf("failed to set typing: %w", err)
	}
	return nil
}

// GetUserID returns the client's user ID.
func (c *Client) GetUserID() string {
	return c.config.UserID
}

// GetDisplayName gets a user's display name, falling back to the localpart
// of the user ID when the profile is missing or unavailable. Results are
// cached for the lifetime of the process.
func (c *Client) GetDisplayName(userID string) (string, error) {
	c.namesMu.Lock()
	if name, ok := c.names[userID]; ok {
		c.namesMu.Unlock()
		return name, nil
	}
	c.namesMu.Unlock()

	profile, err := c.client.GetProfile(context.Background(), id.UserID(userID))
	if err != nil {
		return "", fmt.Errorf("failed to get profile: %w", err)
	}
	name := profile.DisplayName
	if name == "" {
		name = localpart(userID)
	}

	c.namesMu.Lock()
	c.names[userID] = name
	c.namesMu.Unlock()
	return name, nil
}

// inAllowedRoom reports whether the bot responds in the given room.
func (c *Client) inAllowedRoom(roomID string) bool {
	if len(c.config.Rooms) == 0 {
		return true
	}
	for _, room := range c.config.Rooms {
		if room == roomID {
			return true
		}
	}
	return false
}

// handleMessage converts an incoming room message into a dispatch event
// and hands it to the registered handler.
func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	msgContent := evt.Content.AsMessage()
	if msgContent == nil || msgContent.MsgType != event.MsgText {
		return
	}
	if !c.inAllowedRoom(evt.RoomID.String()) {
		return
	}
	if c.msgHandler == nil {
		return
	}

	sender := evt.Sender.String()
	ev := &dispatch.Event{
		ID:           evt.ID.String(),
		RoomID:       evt.RoomID.String(),
		AuthorID:     sender,
		AuthorIsSelf: sender == c.config.UserID,
		Content:      msgContent.Body,
	}
	if !ev.AuthorIsSelf {
		ev.AuthorName = c.displayNameOrLocalpart(sender)
	}

	// Structured mentions (m.mentions) carry the user IDs a client adds
	// when the message body shows display names instead of raw IDs.
	if msgContent.Mentions != nil {
		for _, uid := range msgContent.Mentions.UserIDs {
			ev.Mentions = append(ev.Mentions, dispatch.Mention{
				ID:          uid.String(),
				DisplayName: c.displayNameOrLocalpart(uid.String()),
			})
		}
	}

	c.msgHandler(ctx, ev)
}

// displayNameOrLocalpart never fails: profile lookup errors degrade to the
// localpart of the user ID.
func (c *Client) displayNameOrLocalpart(userID string) string {
	name, err := c.GetDisplayName(userID)
	if err != nil || name == "" {
		return localpart(userID)
	}
	return name
}

// joinRoom attempts to join a room.
func (c *Client) joinRoom(roomID id.RoomID) error {
	_, err := c.client.JoinRoomByID(context.Background(), roomID)
	if err != nil {
		// M_FORBIDDEN is returned by homeservers when the bot is already a
		// member of the room.
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("joinRoom: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}

// localpart extracts the local part of a Matrix user ID
// ("@alice:example.org" -> "alice").
func localpart(userID string) string {
	s := strings.TrimPrefix(userID, "@")
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return s
}
