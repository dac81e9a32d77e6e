package task

import (
	"encoding/json"
	"fmt"

	"github.com/fhuszti/assets-ms-go/internal/port"
	"github.com/hibiken/asynq"
)

const (
	TypeTranscodeVideo = "asset:transcode"
	QueueTranscode     = "transcode"
)

// NewTranscodeTask creates an Asynq task converting a video asset into its web version.
// Conversions are not retried, a failure leaves the output asset marked as failed.
func NewTranscodeTask(req port.TranscodeRequest) (*asynq.Task, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("could not marshal transcode payload: %w", err)
	}
	return asynq.NewTask(TypeTranscodeVideo, data, asynq.Queue(QueueTranscode), asynq.MaxRetry(0)), nil
}

// ParseTranscodePayload parses the task payload to a transcode request.
func ParseTranscodePayload(t *asynq.Task) (port.TranscodeRequest, error) {
	var p port.TranscodeRequest
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return port.TranscodeRequest{}, fmt.Errorf("could not unmarshal payload: %w", err)
	}
	if p.AssetID <= 0 || p.OutputAssetID <= 0 {
		return port.TranscodeRequest{}, fmt.Errorf("invalid transcode payload %s", t.Payload())
	}
	return p, nil
}
