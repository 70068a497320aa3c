package app

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/posture_telemetry/internal/calibration"
	"github.com/relabs-tech/posture_telemetry/internal/pipeline"
	"github.com/relabs-tech/posture_telemetry/internal/telemetry"
)

const publishTimeout = 2 * time.Second

// publisher is the part of mqtt.Client the sink uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// ConnectMQTT connects to broker and waits for the session.
func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	log.Printf("mqtt: connected to broker at %s", broker)
	return client, nil
}

// MQTTSink publishes retained JSON for each sample and calibration change so
// late subscribers see the current state immediately. Publish confirmations
// are awaited off the calling goroutine.
type MQTTSink struct {
	client           publisher
	topicPosture     string
	topicCalibration string

	pending sync.WaitGroup
}

// NewMQTTSink publishes through client.
func NewMQTTSink(client publisher, topicPosture, topicCalibration string) *MQTTSink {
	return &MQTTSink{client: client, topicPosture: topicPosture, topicCalibration: topicCalibration}
}

func (m *MQTTSink) publish(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("mqtt: json marshal error: %v", err)
		return
	}

	token := m.client.Publish(topic, 0, true, payload)
	m.pending.Go(func() {
		if !token.WaitTimeout(publishTimeout) {
			log.Printf("mqtt: publish to %s timed out", topic)
			return
		}
		if token.Error() != nil {
			log.Printf("mqtt: publish error: %v", token.Error())
		}
	})
}

// Close waits for outstanding publish confirmations.
func (m *MQTTSink) Close() {
	m.pending.Wait()
}

func (m *MQTTSink) HandleSample(s pipeline.Snapshot) {
	m.publish(m.topicPosture, s.Record())
}

func (m *MQTTSink) HandleCalibration(st calibration.State) {
	m.publish(m.topicCalibration, st)
}

func (m *MQTTSink) HandleDiagnostic(telemetry.DiagnosticLine) {}
