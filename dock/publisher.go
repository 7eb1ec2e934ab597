package dock

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Marker actions
const (
	MarkerAdd    = "add"
	MarkerDelete = "delete"
)

// Color is an RGBA colour with components in [0, 1]
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// Marker is a visualization primitive for the detected dock
type Marker struct {
	Frame     string  `json:"frame"`
	Namespace string  `json:"ns"`
	ID        int     `json:"id"`
	Shape     string  `json:"shape"`
	Action    string  `json:"action"`
	Pose      Pose    `json:"pose"`
	Scale     float64 `json:"scale"`
	Color     Color   `json:"color"`
	Stamp     int64   `json:"stamp"`
}

// NewDockMarker builds the translucent green cube shown at the docking goal.
// With add false the marker deletes any previously shown one.
func NewDockMarker(frame string, pose Pose, add bool) Marker {
	action := MarkerAdd
	if !add {
		action = MarkerDelete
	}
	return Marker{
		Frame:     frame,
		Namespace: "dockfinder",
		Shape:     "cube",
		Action:    action,
		Pose:      pose,
		Scale:     0.1,
		Color:     Color{R: 0, G: 1, B: 0, A: 0.7},
		Stamp:     time.Now().UnixNano(),
	}
}

// Detection is the per-scan summary published on the detection topic
type Detection struct {
	Frame     string       `json:"frame"`
	Estimate  PoseEstimate `json:"estimate"`
	Goal      *Pose        `json:"goal,omitempty"`
	GoalFrame string       `json:"goalFrame,omitempty"`
	Accepted  bool         `json:"accepted"`
	Timestamp int64        `json:"timestamp"`
}

// MarkerSink receives markers and detections; Publisher is the MQTT implementation.
type MarkerSink interface {
	PublishMarker(m Marker) error
	PublishDetection(d Detection) error
}

// Publisher publishes markers and detections to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          *Detection
	mu            sync.RWMutex
}

// NewPublisher creates a publisher. An empty prefix falls back to
// MQTT_PUBLISH_PREFIX, then to "dockfinder".
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = os.Getenv("MQTT_PUBLISH_PREFIX")
	}
	if prefix == "" {
		prefix = "dockfinder"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,    // fire and forget, a new scan follows shortly
		retain:        true, // late subscribers see the latest marker
	}
}

// Prefix returns the topic prefix
func (p *Publisher) Prefix() string {
	return p.publishPrefix
}

// PublishMarker publishes to <prefix>/marker
func (p *Publisher) PublishMarker(m Marker) error {
	return p.publish(p.publishPrefix+"/marker", m)
}

// PublishDetection publishes to <prefix>/detection and remembers it
func (p *Publisher) PublishDetection(d Detection) error {
	if d.Timestamp == 0 {
		d.Timestamp = time.Now().Unix()
	}

	p.mu.Lock()
	p.last = &d
	p.mu.Unlock()

	if err := p.publish(p.publishPrefix+"/detection", d); err != nil {
		return err
	}
	log.Printf("[MQTT] published detection: (%.3f, %.3f) heading=%.3f score=%.2f accepted=%v",
		d.Estimate.X, d.Estimate.Y, d.Estimate.Heading, d.Estimate.Score, d.Accepted)
	return nil
}

// LastDetection returns a copy of the most recent detection
func (p *Publisher) LastDetection() (Detection, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return Detection{}, false
	}
	return *p.last, true
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

func (p *Publisher) publish(topic string, v any) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}
