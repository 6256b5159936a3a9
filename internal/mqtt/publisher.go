package mqtt

import (
	"encoding/json"
	"strings"

	log "github.com/sirupsen/logrus"

	"hound/internal/pipeline"
)

// DefaultTopicPrefix is used when no prefix is configured
const DefaultTopicPrefix = "hound"

// Sender publishes raw payloads; *Client implements it
type Sender interface {
	Publish(topic string, payload []byte, retained bool) error
}

// Publisher forwards bus events and entity state to MQTT
type Publisher struct {
	sender Sender
	prefix string
}

// NewPublisher creates a publisher writing under prefix
func NewPublisher(sender Sender, prefix string) *Publisher {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &Publisher{sender: sender, prefix: prefix}
}

// EventTopic returns {prefix}/{object id}/{short event name}
func (p *Publisher) EventTopic(event pipeline.Event) string {
	return p.prefix + "/" + objectID(event.EntityID) + "/" + event.ShortName()
}

// StateTopic returns {prefix}/{object id}/state
func (p *Publisher) StateTopic(entityID string) string {
	return p.prefix + "/" + objectID(entityID) + "/state"
}

// OnEvent publishes an event as JSON
func (p *Publisher) OnEvent(event pipeline.Event) {
	p.publish(p.EventTopic(event), event, false)
}

// OnStateChanged publishes the retained entity state
func (p *Publisher) OnStateChanged(entityID string, state pipeline.State) {
	p.publish(p.StateTopic(entityID), state, true)
}

func (p *Publisher) publish(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Errorf("[MQTT] Failed to marshal payload for %s: %v", topic, err)
		return
	}
	if err := p.sender.Publish(topic, payload, retained); err != nil {
		log.Errorf("[MQTT] %v", err)
		return
	}
	log.Debugf("[MQTT] Published %s", topic)
}

func objectID(entityID string) string {
	if i := strings.Index(entityID, "."); i >= 0 {
		return entityID[i+1:]
	}
	return entityID
}

var (
	_ pipeline.EventHandler  = (*Publisher)(nil)
	_ pipeline.StateListener = (*Publisher)(nil)
)
