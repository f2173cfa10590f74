package amqp

import (
	"encoding/json"
	"time"
)

// ExportJobMessage asks the worker to build one export file. It carries
// only the job ID; the worker reads the job row and the year's records
// from the database.
type ExportJobMessage struct {
	JobID     string    `json:"job_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExportJobMessage(jobID string) *ExportJobMessage {
	return &ExportJobMessage{JobID: jobID, Timestamp: time.Now()}
}

func (m *ExportJobMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExportJobMessageFromJSON(data []byte) (*ExportJobMessage, error) {
	var msg ExportJobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SheetsSyncMessage nudges the sync worker to drain the pending queue.
type SheetsSyncMessage struct {
	QueueID   int64     `json:"queue_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSheetsSyncMessage(queueID int64) *SheetsSyncMessage {
	return &SheetsSyncMessage{QueueID: queueID, Timestamp: time.Now()}
}

func (m *SheetsSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SheetsSyncMessageFromJSON(data []byte) (*SheetsSyncMessage, error) {
	var msg SheetsSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
