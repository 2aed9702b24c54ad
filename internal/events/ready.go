package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/PancyStudios/PancyModBot/pkg/errors"
	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/bwmarrin/discordgo"
)

const recoverTimeout = 2 * time.Minute

// RegisterReadyEvents registers the ready and gateway state handlers
func RegisterReadyEvents(client *discord.ExtendedClient, m *moderation.Moderator) {
	var recoverOnce sync.Once

	client.EventHandler.OnReady(func(s *discordgo.Session, r *discordgo.Ready) {
		logger.Success(fmt.Sprintf("✅ Bot conectado: %s#%s", r.User.Username, r.User.Discriminator), "Ready")
		logger.Info(fmt.Sprintf("📊 Conectado a %d servidores", len(r.Guilds)), "Ready")

		// cases recorded by the bot itself are signed with its own id
		m.SetSystemModerator(r.User.ID)

		// Ready fires again after every full reconnect; timers only need
		// rebuilding once per process
		recoverOnce.Do(func() {
			go recoverTimeouts(m)
		})

		if err := s.UpdateGameStatus(0, "🛡️ Moderando con /mod"); err != nil {
			logger.Error(fmt.Sprintf("Error estableciendo estado: %v", err), "Ready")
			return
		}
		logger.Debug("Estado del bot establecido correctamente", "Ready")
	})

	client.EventHandler.OnDisconnect(func(s *discordgo.Session, _ *discordgo.Disconnect) {
		logger.Warn(fmt.Sprintf("🔌 Shard %d desconectado.", s.ShardID), "Shard")
	})

	client.EventHandler.OnResumed(func(s *discordgo.Session, _ *discordgo.Resumed) {
		logger.Success(fmt.Sprintf("✅ Shard %d reanudado.", s.ShardID), "Shard")
	})
}

func recoverTimeouts(m *moderation.Moderator) {
	defer errors.RecoverMiddleware()()

	ctx, cancel := context.WithTimeout(context.Background(), recoverTimeout)
	defer cancel()

	report, err := m.Recover(ctx)
	if err != nil {
		logger.Error(fmt.Sprintf("Error recuperando sanciones temporales: %v", err), "Ready")
		return
	}
	if report.Failed > 0 {
		logger.Warn(fmt.Sprintf("%d sanciones temporales no se pudieron rearmar", report.Failed), "Ready")
	}
}
