package websocket

import (
	"time"

	"github.com/KevinKickass/OpenRoadwayCore/internal/devices"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Device messages, one per device event type
	MessageTypeDeviceValue   MessageType = "device_value"
	MessageTypeCommFailed    MessageType = "comm_failed"
	MessageTypeCommRestored  MessageType = "comm_restored"
	MessageTypeFeedMessage   MessageType = "feed_message"
	MessageTypeCameraCommand MessageType = "camera_command"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"
)

var eventTypes = map[string]MessageType{
	devices.EventValue:         MessageTypeDeviceValue,
	devices.EventCommFailed:    MessageTypeCommFailed,
	devices.EventCommRestored:  MessageTypeCommRestored,
	devices.EventFeedMessage:   MessageTypeFeedMessage,
	devices.EventCameraCommand: MessageTypeCameraCommand,
}

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	// Device is set for device messages; clients may subscribe by device.
	Device string `json:"device,omitempty"`
	Data   any    `json:"data"`
}

// DeviceData is the payload of device messages.
type DeviceData struct {
	Kind  string `json:"kind"`
	Key   string `json:"key,omitempty"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewDeviceMessage converts a device event.
func NewDeviceMessage(ev devices.Event) Message {
	msgType, ok := eventTypes[ev.Type]
	if !ok {
		msgType = MessageType(ev.Type)
	}
	return Message{
		Type:      msgType,
		Timestamp: ev.Timestamp,
		Device:    ev.Device,
		Data: DeviceData{
			Kind:  string(ev.Kind),
			Key:   ev.Key,
			Value: ev.Value,
			Error: ev.Error,
		},
	}
}
