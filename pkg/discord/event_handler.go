// Package discord provides the event handler for managing Discord events.
package discord

import (
	"fmt"
	"sync"

	"github.com/PancyStudios/PancyModBot/pkg/errors"
	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/bwmarrin/discordgo"
)

// EventHandler manages event loading and registration
type EventHandler struct {
	client *ExtendedClient
	events []interface{}
	mu     sync.RWMutex
}

// NewEventHandler creates a new EventHandler
func NewEventHandler(client *ExtendedClient) *EventHandler {
	return &EventHandler{
		client: client,
		events: make([]interface{}, 0),
	}
}

// LoadEvents reports the handlers registered so far. Handlers are added
// programmatically before Start through the On* helpers.
func (eh *EventHandler) LoadEvents() error {
	logger.System(fmt.Sprintf("Eventos cargados: %d", eh.Count()), "EventHandler")
	return nil
}

// Count returns the number of registered handlers
func (eh *EventHandler) Count() int {
	eh.mu.RLock()
	defer eh.mu.RUnlock()
	return len(eh.events)
}

// RegisterEvent adds an event handler to the Discord session. handler must
// be one of the plain func(*discordgo.Session, *Event) types discordgo knows.
func (eh *EventHandler) RegisterEvent(handler interface{}) {
	eh.client.Session.AddHandler(handler)
	eh.mu.Lock()
	eh.events = append(eh.events, handler)
	eh.mu.Unlock()
}

// Event handler types for common Discord events

// ReadyHandler is called when the bot is ready
type ReadyHandler func(s *discordgo.Session, r *discordgo.Ready)

// GuildCreateHandler is called when the bot joins a guild
type GuildCreateHandler func(s *discordgo.Session, g *discordgo.GuildCreate)

// GuildDeleteHandler is called when the bot leaves a guild
type GuildDeleteHandler func(s *discordgo.Session, g *discordgo.GuildDelete)

// GuildMemberAddHandler is called when a member joins a guild
type GuildMemberAddHandler func(s *discordgo.Session, m *discordgo.GuildMemberAdd)

// GuildMemberRemoveHandler is called when a member leaves a guild
type GuildMemberRemoveHandler func(s *discordgo.Session, m *discordgo.GuildMemberRemove)

// GuildBanRemoveHandler is called when a user is unbanned
type GuildBanRemoveHandler func(s *discordgo.Session, b *discordgo.GuildBanRemove)

// GuildMemberUpdateHandler is called when a member is updated
type GuildMemberUpdateHandler func(s *discordgo.Session, m *discordgo.GuildMemberUpdate)

// DisconnectHandler is called when the gateway connection drops
type DisconnectHandler func(s *discordgo.Session, d *discordgo.Disconnect)

// ResumedHandler is called when the gateway session is resumed
type ResumedHandler func(s *discordgo.Session, r *discordgo.Resumed)

// Helper functions to register common event types. discordgo dispatches on
// the unnamed func type, so every helper goes through on, which also keeps a
// panicking handler from taking the gateway goroutine down with it.

func on[E any](eh *EventHandler, name string, handler func(*discordgo.Session, E)) {
	eh.RegisterEvent(func(s *discordgo.Session, e E) {
		defer errors.RecoverMiddleware()()
		handler(s, e)
	})
	logger.Debug(fmt.Sprintf("Evento '%s' registrado", name), "EventHandler")
}

// OnReady registers a ready event handler
func (eh *EventHandler) OnReady(handler ReadyHandler) {
	on[*discordgo.Ready](eh, "Ready", handler)
}

// OnGuildCreate registers a guild create event handler
func (eh *EventHandler) OnGuildCreate(handler GuildCreateHandler) {
	on[*discordgo.GuildCreate](eh, "GuildCreate", handler)
}

// OnGuildDelete registers a guild delete event handler
func (eh *EventHandler) OnGuildDelete(handler GuildDeleteHandler) {
	on[*discordgo.GuildDelete](eh, "GuildDelete", handler)
}

// OnGuildMemberAdd registers a guild member add event handler
func (eh *EventHandler) OnGuildMemberAdd(handler GuildMemberAddHandler) {
	on[*discordgo.GuildMemberAdd](eh, "GuildMemberAdd", handler)
}

// OnGuildMemberRemove registers a guild member remove event handler
func (eh *EventHandler) OnGuildMemberRemove(handler GuildMemberRemoveHandler) {
	on[*discordgo.GuildMemberRemove](eh, "GuildMemberRemove", handler)
}

// OnGuildMemberUpdate registers a guild member update event handler
func (eh *EventHandler) OnGuildMemberUpdate(handler GuildMemberUpdateHandler) {
	on[*discordgo.GuildMemberUpdate](eh, "GuildMemberUpdate", handler)
}

// OnGuildBanRemove registers a guild ban remove event handler
func (eh *EventHandler) OnGuildBanRemove(handler GuildBanRemoveHandler) {
	on[*discordgo.GuildBanRemove](eh, "GuildBanRemove", handler)
}

// OnDisconnect registers a gateway disconnect handler
func (eh *EventHandler) OnDisconnect(handler DisconnectHandler) {
	on[*discordgo.Disconnect](eh, "Disconnect", handler)
}

// OnResumed registers a gateway resume handler
func (eh *EventHandler) OnResumed(handler ResumedHandler) {
	on[*discordgo.Resumed](eh, "Resumed", handler)
}
