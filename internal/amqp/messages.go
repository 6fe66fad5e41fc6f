package amqp

import (
	"encoding/json"
	"time"
)

// TransactionRecordedMessage announces a committed ledger write. It carries
// identifiers only; consumers refetch current state from the store, so a
// message can never show a balance the store did not commit.
type TransactionRecordedMessage struct {
	TransactionID string    `json:"transactionId"`
	DebtorID      string    `json:"debtorId"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTransactionRecordedMessage creates a message for a committed transaction
func NewTransactionRecordedMessage(transactionID, debtorID string) *TransactionRecordedMessage {
	return &TransactionRecordedMessage{
		TransactionID: transactionID,
		DebtorID:      debtorID,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionRecordedMessageFromJSON creates a message from JSON bytes
func TransactionRecordedMessageFromJSON(data []byte) (*TransactionRecordedMessage, error) {
	var msg TransactionRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
