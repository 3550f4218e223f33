package ingest

import (
	"time"

	"github.com/netneural/mqtt-ingest/internal/models"
)

// Message is the canonical, dialect-independent result of parsing one raw
// MQTT payload. DeviceToken is always non-empty; a payload with no
// extractable token never produces a Message.
type Message struct {
	DeviceToken string

	// Telemetry is nil when the payload carried no recognizable readings.
	Telemetry models.Variables

	// Status is empty when the payload carried no connectivity status.
	Status models.DeviceStatus

	Timestamp time.Time

	// Metadata retains the original payload for audit.
	Metadata models.Variables
}
