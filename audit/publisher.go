package audit

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// BudgetMessage is the JSON payload published on {prefix}/budget. Mean is
// null until the first trial is recorded.
type BudgetMessage struct {
	SessionID           string              `json:"sessionId"`
	Resolution          ResolutionModel     `json:"resolution"`
	Profile             ConservatismProfile `json:"profile"`
	TrialCount          int                 `json:"trialCount"`
	Mean                *float64            `json:"mean"`
	ObserverUncertainty *float64            `json:"observerUncertainty"`
	SensorUncertainty   float64             `json:"sensorUncertainty"`
	CombinedUncertainty float64             `json:"combinedUncertainty"`
	CoverageFactor      CoverageFactor      `json:"coverageFactor"`
	ExpandedUncertainty float64             `json:"expandedUncertainty"`
	Confidence          string              `json:"confidence"`
	Result              string              `json:"result"`
	Timestamp           int64               `json:"timestamp"`
}

// NewBudgetMessage builds the wire form of a budget
func NewBudgetMessage(sessionID string, settings Settings, b Budget) BudgetMessage {
	msg := BudgetMessage{
		SessionID:           sessionID,
		Resolution:          settings.Resolution,
		Profile:             settings.Profile,
		TrialCount:          b.TrialCount,
		SensorUncertainty:   b.SensorUncertainty,
		CombinedUncertainty: b.CombinedUncertainty,
		CoverageFactor:      b.CoverageFactor,
		ExpandedUncertainty: b.ExpandedUncertainty,
		Confidence:          b.Confidence,
		Result:              b.Result(),
		Timestamp:           time.Now().Unix(),
	}
	if b.HasData {
		mean := b.Mean
		msg.Mean = &mean
	}
	if !b.InsufficientTrials {
		uo := b.ObserverUncertainty
		msg.ObserverUncertainty = &uo
	}
	return msg
}

// Publisher publishes budgets and reports to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	logger        *zap.Logger
}

// NewPublisher creates a publisher. MQTT_PUBLISH_PREFIX overrides prefix,
// which defaults to "fsaudit".
func NewPublisher(client mqtt.Client, prefix string, logger *zap.Logger) *Publisher {
	prefix = envOr("MQTT_PUBLISH_PREFIX", prefix)
	if prefix == "" {
		prefix = "fsaudit"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true, // late subscribers get the current budget
		logger:        logger.Named("publisher"),
	}
}

// PublishBudget publishes the budget to {prefix}/budget
func (p *Publisher) PublishBudget(msg BudgetMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling budget: %w", err)
	}

	if err := p.publish(p.publishPrefix+"/budget", payload); err != nil {
		return err
	}

	p.logger.Debug("published budget",
		zap.String("session", msg.SessionID),
		zap.Int("trials", msg.TrialCount),
		zap.String("result", msg.Result))
	return nil
}

// PublishReport publishes the methodology text to {prefix}/report
func (p *Publisher) PublishReport(report string) error {
	return p.publish(p.publishPrefix+"/report", []byte(report))
}

func (p *Publisher) publish(topic string, payload []byte) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

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

// Prefix returns the topic prefix in use
func (p *Publisher) Prefix() string {
	return p.publishPrefix
}
