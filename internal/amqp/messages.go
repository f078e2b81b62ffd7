package amqp

import (
	"encoding/json"
	"time"
)

// ReceiptCleanupMessage asks the worker to delete a superseded or
// orphaned receipt artifact. Deletion is best effort; the ref alone is
// enough, the worker holds its own handle to the artifact store.
type ReceiptCleanupMessage struct {
	Ref       string    `json:"ref"`
	Timestamp time.Time `json:"timestamp"`
}

// NewReceiptCleanupMessage creates a cleanup message for one artifact ref.
func NewReceiptCleanupMessage(ref string) *ReceiptCleanupMessage {
	return &ReceiptCleanupMessage{
		Ref:       ref,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *ReceiptCleanupMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReceiptCleanupMessageFromJSON creates a message from JSON bytes.
func ReceiptCleanupMessageFromJSON(data []byte) (*ReceiptCleanupMessage, error) {
	var msg ReceiptCleanupMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
