package mqtt

import (
	"context"
	"fmt"
	"time"

	"github.com/PancyStudios/PancyModBot/pkg/models"
)

// Request topics answered by the bot
const (
	TopicTimeoutsRequest = "moderation/timeouts"
	TopicCasesRequest    = "moderation/cases"
)

const handlerTimeout = 5 * time.Second

// TimeoutSource lists active timeouts
type TimeoutSource interface {
	LoadAll(ctx context.Context) ([]models.ActiveTimeout, error)
	ListServer(ctx context.Context, serverID string) ([]models.ActiveTimeout, error)
}

// CaseSource reads the case history of a user
type CaseSource interface {
	Cases(ctx context.Context, serverID, userID string) ([]models.ModerationCase, error)
}

// TimeoutsHandler answers with the active timeouts, filtered by the optional
// "serverId" field of the payload
func TimeoutsHandler(src TimeoutSource) RequestHandler {
	return func(payload map[string]interface{}) (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		if serverID, _ := payload["serverId"].(string); serverID != "" {
			return src.ListServer(ctx, serverID)
		}
		return src.LoadAll(ctx)
	}
}

// CasesHandler answers with the cases of "userId" in "serverId"
func CasesHandler(src CaseSource) RequestHandler {
	return func(payload map[string]interface{}) (interface{}, error) {
		serverID, _ := payload["serverId"].(string)
		userID, _ := payload["userId"].(string)
		if serverID == "" || userID == "" {
			return nil, fmt.Errorf("serverId y userId son obligatorios")
		}

		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		return src.Cases(ctx, serverID, userID)
	}
}

// RegisterModerationHandlers subscribes the moderation request topics
func (mc *MqttCommunicator) RegisterModerationHandlers(timeouts TimeoutSource, cases CaseSource) {
	mc.On(TopicTimeoutsRequest, TimeoutsHandler(timeouts))
	mc.On(TopicCasesRequest, CasesHandler(cases))
}
