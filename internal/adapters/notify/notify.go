// Package notify announces attendance to the outside world.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/okian/rollcall/internal/domain/model"
)

// EventAttendanceMarked is the event name of a new attendance record.
const EventAttendanceMarked = "attendance.marked"

const (
	defaultTopic     = "rollcall/attendance"
	connectTimeout   = 30 * time.Second
	publishTimeout   = 10 * time.Second
	disconnectQuiesceMs = 250 // milliseconds
)

// Sentinel kinds for notification errors.
var (
	ErrNotConnected   = errors.New("not connected to broker")
	ErrPublishTimeout = errors.New("publish timed out")
	ErrConnectTimeout = errors.New("broker connection timed out")
)

// Publisher sends attendance notifications.
type Publisher interface {
	PublishMarked(ctx context.Context, rec model.AttendanceRecord, who model.Identity) error
	Close() error
}

// Nop discards every notification.
type Nop struct{}

// PublishMarked implements Publisher.
func (Nop) PublishMarked(context.Context, model.AttendanceRecord, model.Identity) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }

// Message is the JSON body published for a new record.
type Message struct {
	Event       string    `json:"event"`
	RecordID    string    `json:"record_id"`
	Seq         uint64    `json:"seq"`
	IdentityID  int64     `json:"identity_id"`
	DisplayName string    `json:"display_name,omitempty"`
	ExternalRef string    `json:"external_ref,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Confidence  float64   `json:"confidence"`
	Location    string    `json:"location"`
	Manual      bool      `json:"manual"`
}

// NewMessage builds the message for rec.
func NewMessage(rec model.AttendanceRecord, who model.Identity) Message { //nolint:gocritic // hugeParam
	return Message{
		Event:       EventAttendanceMarked,
		RecordID:    rec.ID,
		Seq:         rec.Seq,
		IdentityID:  rec.IdentityID,
		DisplayName: who.DisplayName,
		ExternalRef: who.ExternalRef,
		Timestamp:   rec.Timestamp,
		Confidence:  rec.Confidence,
		Location:    rec.Location,
		Manual:      rec.Manual,
	}
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
}

// MQTTPublisher publishes to <topic>/<identity_id> with QoS 0.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	mu     sync.Mutex
}

// DialMQTT connects to the broker and returns a publisher.
func DialMQTT(cfg MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, ErrConnectTimeout
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}
	return NewMQTTPublisher(client, cfg.Topic), nil
}

// NewMQTTPublisher wraps an existing client.
func NewMQTTPublisher(client mqtt.Client, topic string) *MQTTPublisher {
	topic = strings.TrimSuffix(topic, "/")
	if topic == "" {
		topic = defaultTopic
	}
	return &MQTTPublisher{client: client, topic: topic}
}

// Topic returns the topic a record for identityID is published to.
func (p *MQTTPublisher) Topic(identityID int64) string {
	return p.topic + "/" + strconv.FormatInt(identityID, 10)
}

// PublishMarked implements Publisher.
func (p *MQTTPublisher) PublishMarked(ctx context.Context, rec model.AttendanceRecord, who model.Identity) error { //nolint:gocritic // hugeParam
	payload, err := json.Marshal(NewMessage(rec, who))
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.client.IsConnected() {
		return ErrNotConnected
	}
	token := p.client.Publish(p.Topic(rec.IdentityID), 0, false, payload)

	timeout := publishTimeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if !token.WaitTimeout(timeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client.IsConnected() {
		p.client.Disconnect(disconnectQuiesceMs)
	}
	return nil
}
