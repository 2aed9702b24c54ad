// Package mqtt publishes moderation events to the PancyStudios broker and
// answers request/response queries from other services.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/google/uuid"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	requestPrefix  = "pancy/request/"
	responsePrefix = "pancy/response/"

	// events are published at least once so no case is lost on a reconnect
	eventQoS = 1
)

// MqttRequest represents an MQTT request message
type MqttRequest struct {
	CorrelationID string      `json:"correlationId"`
	Payload       interface{} `json:"payload,omitempty"`
}

// MqttResponse represents an MQTT response message
type MqttResponse struct {
	CorrelationID string      `json:"correlationId"`
	Data          interface{} `json:"data"`
	Error         string      `json:"error,omitempty"`
}

// RequestHandler answers one request. The payload carries the request topic
// under "_topic".
type RequestHandler func(payload map[string]interface{}) (interface{}, error)

// MqttCommunicator handles MQTT communication
type MqttCommunicator struct {
	client   mqtt.Client
	clientID string
}

var (
	communicator *MqttCommunicator
	once         sync.Once
)

// Init initializes the global MQTT communicator
func Init(host, port, username, password, clientID string) *MqttCommunicator {
	once.Do(func() {
		communicator = NewMqttCommunicator(host, port, username, password, clientID)
	})
	return communicator
}

// NewMqttCommunicator connects to the broker. Connection failures are logged
// and retried in the background by paho.
func NewMqttCommunicator(host, port, username, password, clientID string) *MqttCommunicator {
	mc := &MqttCommunicator{clientID: clientID}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%s", host, port)).
		SetClientID(clientID + "_" + uuid.NewString()).
		SetUsername(username).
		SetPassword(password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			logger.Success("Conectado al broker MQTT como "+clientID, "MQTT")
		}).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			logger.Error(fmt.Sprintf("Conexión MQTT perdida: %v", err), "MQTT")
		})

	mc.client = mqtt.NewClient(opts)
	if token := mc.client.Connect(); token.Wait() && token.Error() != nil {
		logger.Error(fmt.Sprintf("Error de conexión MQTT: %v", token.Error()), "MQTT")
	}
	return mc
}

// Destroy closes the MQTT connection
func (mc *MqttCommunicator) Destroy() {
	if !mc.IsConnected() {
		logger.Warn("El cliente MQTT no estaba conectado, no se necesita cerrar.", "MQTT")
		return
	}
	mc.client.Disconnect(250)
	logger.System("Conexión MQTT cerrada exitosamente.", "MQTT")
}

// IsConnected returns true if connected to the broker
func (mc *MqttCommunicator) IsConnected() bool {
	return mc.client != nil && mc.client.IsConnected()
}

// Publish sends payload as JSON to topic. It satisfies the moderation
// core's event publisher.
func (mc *MqttCommunicator) Publish(topic string, payload interface{}) error {
	return mc.publish(topic, eventQoS, payload)
}

func (mc *MqttCommunicator) publish(topic string, qos byte, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}

	token := mc.client.Publish(topic, qos, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

// On answers requests sent to pancy/request/<requestTopic>. The reply goes to
// pancy/response/<topic>/<correlationId>.
func (mc *MqttCommunicator) On(requestTopic string, callback RequestHandler) {
	pattern := requestPrefix + requestTopic

	token := mc.client.Subscribe(pattern, 0, func(c mqtt.Client, msg mqtt.Message) {
		if !topicMatch(pattern, msg.Topic()) {
			return
		}

		responseTopic, response, err := answer(msg.Topic(), msg.Payload(), callback)
		if err != nil {
			logger.Error(fmt.Sprintf("Petición MQTT inválida en %s: %v", msg.Topic(), err), "MQTT")
			return
		}
		if err := mc.publish(responseTopic, 0, response); err != nil {
			logger.Error(fmt.Sprintf("Error respondiendo en %s: %v", responseTopic, err), "MQTT")
		}
	})

	if token.Wait() && token.Error() != nil {
		logger.Error(fmt.Sprintf("Error suscribiendo a %s: %v", pattern, token.Error()), "MQTT")
		return
	}
	logger.Debug("Escuchando peticiones en "+pattern, "MQTT")
}

// answer decodes one request, runs callback on it and builds the reply. A
// panicking callback becomes an error response.
func answer(topic string, raw []byte, callback RequestHandler) (responseTopic string, response MqttResponse, err error) {
	var request MqttRequest
	if err := json.Unmarshal(raw, &request); err != nil {
		return "", MqttResponse{}, err
	}
	if request.CorrelationID == "" {
		return "", MqttResponse{}, fmt.Errorf("missing correlationId")
	}

	actual := strings.TrimPrefix(topic, requestPrefix)
	payload, _ := request.Payload.(map[string]interface{})
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["_topic"] = actual

	response = MqttResponse{CorrelationID: request.CorrelationID}
	func() {
		defer func() {
			if r := recover(); r != nil {
				response.Data = nil
				response.Error = fmt.Sprintf("panic: %v", r)
			}
		}()
		data, cbErr := callback(payload)
		if cbErr != nil {
			response.Error = cbErr.Error()
			return
		}
		response.Data = data
	}()

	return responsePrefix + actual + "/" + request.CorrelationID, response, nil
}

// topicMatch checks a received topic against a subscription pattern.
// '+' matches exactly one level, a trailing '#' matches the rest.
func topicMatch(pattern, topic string) bool {
	patternParts := strings.Split(pattern, "/")
	topicParts := strings.Split(topic, "/")

	for i, part := range patternParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part != "+" && part != topicParts[i] {
			return false
		}
	}
	return len(patternParts) == len(topicParts)
}
