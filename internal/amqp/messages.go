package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// StorageImportedMessage announces that a backup collaborator replaced the
// contents of a storage slot. Consumers reload; the body carries no data.
type StorageImportedMessage struct {
	Key       string    `json:"key"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewStorageImportedMessage creates a message stamped with the current time
func NewStorageImportedMessage(key, source string) *StorageImportedMessage {
	return &StorageImportedMessage{
		Key:       key,
		Source:    source,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *StorageImportedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// StorageImportedMessageFromJSON parses a message body. The key is required.
func StorageImportedMessageFromJSON(data []byte) (*StorageImportedMessage, error) {
	var msg StorageImportedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Key == "" {
		return nil, fmt.Errorf("storage imported message: missing key")
	}
	return &msg, nil
}
