package tower

import (
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultPublishPrefix is the topic prefix used when none is configured
const DefaultPublishPrefix = "celltower"

// EstimateMessage is the retained payload published for a tower
type EstimateMessage struct {
	TowerID   string  `json:"towerId"`
	Method    Method  `json:"method"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Radius    float64 `json:"radius"`
	Circles   int     `json:"circles"`
	Points    int     `json:"points"`
	Timestamp int64   `json:"timestamp"`
}

// NewEstimateMessage builds the published payload for a finished run
func NewEstimateMessage(res *Result) (*EstimateMessage, error) {
	if res == nil || res.Estimate == nil {
		return nil, fmt.Errorf("result has no estimate")
	}
	return &EstimateMessage{
		TowerID:   res.TowerID,
		Method:    res.Method,
		Lat:       res.Estimate.Center.Lat,
		Lon:       res.Estimate.Center.Lon,
		Radius:    res.Estimate.Radius,
		Circles:   res.Estimate.Count,
		Points:    len(res.Points),
		Timestamp: time.Now().Unix(),
	}, nil
}

// Publisher publishes tower estimates to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	estimates     map[string]*EstimateMessage
	mu            sync.RWMutex
}

// NewPublisher creates a new estimate publisher. An empty prefix selects
// DefaultPublishPrefix. If client is nil, publishing is disabled.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           1,
		retain:        true, // Retain for latest estimate
		estimates:     make(map[string]*EstimateMessage),
	}
}

// PublishEstimate publishes a tower estimate to its own topic and refreshes
// the combined estimates topic
func (p *Publisher) PublishEstimate(res *Result) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	msg, err := NewEstimateMessage(res)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.estimates[msg.TowerID] = msg
	p.mu.Unlock()

	// {prefix}/{tower}/estimate
	if err := p.publishIndividual(msg); err != nil {
		log.Printf("[MQTT] Error publishing estimate for %s: %v", msg.TowerID, err)
		return err
	}

	// {prefix}/estimates
	if err := p.publishCombined(); err != nil {
		log.Printf("[MQTT] Error publishing combined estimates: %v", err)
		return err
	}

	return nil
}

func (p *Publisher) publishIndividual(msg *EstimateMessage) error {
	topic := fmt.Sprintf("%s/%s/estimate", p.publishPrefix, msg.TowerID)

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling estimate: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	log.Printf("[MQTT] Published estimate for %s: (%f, %f) r=%f",
		msg.TowerID, msg.Lat, msg.Lon, msg.Radius)
	return nil
}

func (p *Publisher) publishCombined() error {
	p.mu.RLock()
	estimates := make([]*EstimateMessage, 0, len(p.estimates))
	for _, est := range p.estimates {
		estimates = append(estimates, est)
	}
	p.mu.RUnlock()

	if len(estimates) == 0 {
		return nil
	}
	slices.SortFunc(estimates, func(a, b *EstimateMessage) int {
		return strings.Compare(a.TowerID, b.TowerID)
	})

	topic := fmt.Sprintf("%s/estimates", p.publishPrefix)
	message := map[string]interface{}{
		"towers":    estimates,
		"timestamp": time.Now().Unix(),
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshaling combined estimates: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	return nil
}

// GetEstimate returns the last published estimate for a tower
func (p *Publisher) GetEstimate(towerID string) (*EstimateMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	est, ok := p.estimates[towerID]
	return est, ok
}

// Prefix returns the topic prefix
func (p *Publisher) Prefix() string { return p.publishPrefix }

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
