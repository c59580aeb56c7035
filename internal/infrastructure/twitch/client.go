package twitch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"chatwarden/internal/core/domain"
	"chatwarden/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config holds chat transport settings.
type Config struct {
	URL        string
	Username   string
	OAuthToken string
	Channels   []string
}

// MessageHandler receives every inbound chat message, one at a time, in
// arrival order.
type MessageHandler func(ctx context.Context, msg domain.ChatMessage)

// JoinHandler fires when the bot itself joins a channel.
type JoinHandler func(channel domain.Channel)

// Client speaks the platform's IRC-over-WebSocket chat protocol. Reads are
// single-threaded; writes are serialized by a mutex so outbound actions can
// be fired from any goroutine.
type Client struct {
	cfg    Config
	logger *zap.SugaredLogger

	conn    *websocket.Conn
	writeMu sync.Mutex

	stateMu  sync.RWMutex
	channels map[domain.Channel]struct{}
	modded   map[domain.Channel]bool

	onMessage MessageHandler
	onJoin    JoinHandler
}

func NewClient(cfg Config, logger *zap.SugaredLogger) *Client {
	return &Client{
		cfg:      cfg,
		logger:   logger,
		channels: make(map[domain.Channel]struct{}),
		modded:   make(map[domain.Channel]bool),
	}
}

func (c *Client) OnMessage(h MessageHandler) { c.onMessage = h }
func (c *Client) OnJoin(h JoinHandler)       { c.onJoin = h }

// Connect dials the chat endpoint, authenticates, and joins the configured
// channels. The dial is retried with backoff; everything after a successful
// dial fails fast.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := retry.Do(ctx, retry.DefaultConfig(), func() (*websocket.Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("dial chat endpoint: %w", err)
		}
		return conn, nil
	})
	if err != nil {
		return err
	}
	c.conn = conn

	lines := []string{
		"CAP REQ :twitch.tv/tags twitch.tv/commands twitch.tv/membership",
		"PASS oauth:" + strings.TrimPrefix(c.cfg.OAuthToken, "oauth:"),
		"NICK " + c.cfg.Username,
	}
	for _, line := range lines {
		if err := c.write(line); err != nil {
			return err
		}
	}
	for _, ch := range c.cfg.Channels {
		if err := c.write("JOIN #" + strings.ToLower(ch)); err != nil {
			return err
		}
	}

	c.logger.Infow("connected to chat", "url", c.cfg.URL, "channels", c.cfg.Channels)
	return nil
}

// Run reads and dispatches inbound lines until the context is cancelled or
// the connection drops. One message is fully handled before the next is
// read, which keeps all core state mutation single-writer.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("chat read: %w", err)
		}
		for _, line := range strings.Split(string(data), "\r\n") {
			if line == "" {
				continue
			}
			c.handleLine(ctx, line)
		}
	}
}

func (c *Client) handleLine(ctx context.Context, line string) {
	msg := parseLine(line)
	switch msg.command {
	case "PING":
		if err := c.write("PONG :" + msg.trailing); err != nil {
			c.logger.Errorw("pong failed", "error", err)
		}
	case "PRIVMSG":
		if len(msg.params) == 0 || c.onMessage == nil {
			return
		}
		nick := nickFromPrefix(msg.prefix)
		c.onMessage(ctx, domain.ChatMessage{
			Channel: channelFromParam(msg.params[0]),
			User: domain.ChatUser{
				Name:   nick,
				Badges: parseBadges(msg.tags["badges"]),
			},
			Text: msg.trailing,
			Self: strings.EqualFold(nick, c.cfg.Username),
		})
	case "USERSTATE":
		// The platform reports the bot's own state per channel; track
		// moderator capability for max-mode checks.
		if len(msg.params) == 0 {
			return
		}
		ch := channelFromParam(msg.params[0])
		badges := parseBadges(msg.tags["badges"])
		_, broadcaster := badges["broadcaster"]
		c.stateMu.Lock()
		c.modded[ch] = msg.tags["mod"] == "1" || broadcaster
		c.stateMu.Unlock()
	case "JOIN":
		if len(msg.params) == 0 {
			return
		}
		if strings.EqualFold(nickFromPrefix(msg.prefix), c.cfg.Username) {
			ch := channelFromParam(msg.params[0])
			c.stateMu.Lock()
			c.channels[ch] = struct{}{}
			c.stateMu.Unlock()
			c.logger.Infow("joined channel", "channel", ch)
			if c.onJoin != nil {
				c.onJoin(ch)
			}
		}
	case "NOTICE":
		c.logger.Infow("chat notice", "params", msg.params, "text", msg.trailing)
	}
}

// Say sends a chat message to a channel.
func (c *Client) Say(ctx context.Context, channel domain.Channel, text string) error {
	return c.write(fmt.Sprintf("PRIVMSG #%s :%s", channel, text))
}

// Timeout temporarily silences a user in a channel.
func (c *Client) Timeout(ctx context.Context, channel domain.Channel, user string, duration time.Duration, reason string) error {
	secs := int(duration.Seconds())
	if secs < 1 {
		secs = 1
	}
	return c.Say(ctx, channel, fmt.Sprintf("/timeout %s %d %s", user, secs, reason))
}

// Ban permanently bans a user from a channel.
func (c *Client) Ban(ctx context.Context, channel domain.Channel, user string, reason string) error {
	return c.Say(ctx, channel, fmt.Sprintf("/ban %s %s", user, reason))
}

// IsModerator reports whether the bot holds moderator capability in the
// channel.
func (c *Client) IsModerator(channel domain.Channel) bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.modded[channel]
}

// Channels lists the channels the bot has joined.
func (c *Client) Channels() []domain.Channel {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	channels := make([]domain.Channel, 0, len(c.channels))
	for ch := range c.channels {
		channels = append(channels, ch)
	}
	return channels
}

// Close tears down the websocket connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) write(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("chat connection not established")
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(line+"\r\n")); err != nil {
		return fmt.Errorf("chat write: %w", err)
	}
	return nil
}
