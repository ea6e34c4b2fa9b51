// Package discord adapts a discordgo session to the workflow coordinator.
// Channel and author filtering happen in the coordinator.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"voicediary/internal/config"
	"voicediary/internal/logging"
	"voicediary/internal/services"
	"voicediary/internal/workflow"
)

// Handler receives mapped message events.
type Handler interface {
	HandleAttachmentMessage(ctx context.Context, channelID, authorID string, attachments []workflow.Attachment, sink workflow.ReplySink) workflow.Outcome
	SetBotUserID(id string)
}

// session is the subset of *discordgo.Session the gateway uses.
type session interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Gateway owns the bot connection and forwards attachment messages.
type Gateway struct {
	session session
	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	removes []func()
}

// New builds a gateway for the configured bot token.
func New(cfg *config.Config, handler Handler, logger *slog.Logger) (*Gateway, error) {
	if err := cfg.ValidateGateway(); err != nil {
		return nil, err
	}
	dg, err := discordgo.New("Bot " + strings.TrimSpace(cfg.Discord.Token))
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
	return newGateway(dg, handler, logger), nil
}

func newGateway(s session, handler Handler, logger *slog.Logger) *Gateway {
	return &Gateway{
		session: s,
		handler: handler,
		logger:  logging.NewComponentLogger(logger, "discord"),
		ctx:     context.Background(),
	}
}

// Start registers event handlers and opens the websocket. Jobs started from
// events inherit ctx.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	g.ctx = ctx
	g.removes = append(g.removes,
		g.session.AddHandler(g.onReady),
		g.session.AddHandler(g.onMessageCreate),
	)
	g.mu.Unlock()

	if err := g.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	g.logger.Info("discord gateway connected")
	return nil
}

// Close removes handlers and closes the websocket.
func (g *Gateway) Close() error {
	g.mu.Lock()
	removes := g.removes
	g.removes = nil
	g.mu.Unlock()
	for _, remove := range removes {
		remove()
	}
	if err := g.session.Close(); err != nil {
		return fmt.Errorf("close discord gateway: %w", err)
	}
	return nil
}

func (g *Gateway) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r == nil || r.User == nil {
		return
	}
	g.handler.SetBotUserID(r.User.ID)
	g.logger.Info("logged in",
		logging.String("bot_user", r.User.Username),
		logging.Int("guilds", len(r.Guilds)),
		logging.String(logging.FieldEventType, "gateway_ready"),
	)
}

func (g *Gateway) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil {
		return
	}
	g.dispatch(m.Message)
}

func (g *Gateway) dispatch(msg *discordgo.Message) workflow.Outcome {
	if msg.Author == nil {
		return workflow.Outcome{}
	}
	g.mu.Lock()
	ctx := services.WithRequestID(g.ctx, msg.ID)
	g.mu.Unlock()

	g.logger.Debug("message received",
		logging.String("channel_id", msg.ChannelID),
		logging.String("author_id", msg.Author.ID),
		logging.Int("attachments", len(msg.Attachments)),
	)

	sink := &messageSink{
		session:   g.session,
		channelID: msg.ChannelID,
		reference: msg.Reference(),
	}
	return g.handler.HandleAttachmentMessage(ctx, msg.ChannelID, msg.Author.ID, mapAttachments(msg.Attachments), sink)
}

func mapAttachments(in []*discordgo.MessageAttachment) []workflow.Attachment {
	out := make([]workflow.Attachment, 0, len(in))
	for _, a := range in {
		if a == nil {
			continue
		}
		out = append(out, workflow.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			SizeBytes:   int64(a.Size),
			URL:         a.URL,
		})
	}
	return out
}

// messageSink replies to one inbound message.
type messageSink struct {
	session   session
	channelID string
	reference *discordgo.MessageReference
}

func (s *messageSink) Reply(ctx context.Context, text string) (workflow.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return workflow.MessageRef{}, err
	}
	sent, err := s.session.ChannelMessageSendReply(s.channelID, text, s.reference, discordgo.WithContext(ctx))
	if err != nil {
		return workflow.MessageRef{}, fmt.Errorf("send reply: %w", err)
	}
	if sent == nil {
		return workflow.MessageRef{}, errors.New("send reply: empty response")
	}
	return workflow.MessageRef{ChannelID: sent.ChannelID, MessageID: sent.ID}, nil
}

func (s *messageSink) Edit(ctx context.Context, ref workflow.MessageRef, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	channelID := ref.ChannelID
	if channelID == "" {
		channelID = s.channelID
	}
	if _, err := s.session.ChannelMessageEdit(channelID, ref.MessageID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("edit reply: %w", err)
	}
	return nil
}
