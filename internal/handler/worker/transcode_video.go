package worker

import (
	"context"

	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/port"
)

// TranscodeVideoHandler handles a transcode task.
// It runs the conversion on the worker's queue and waits for it, so asynq
// keeps the task active while the encoder runs.
func TranscodeVideoHandler(ctx context.Context, p port.TranscodeRequest, svc port.VideoConverter) error {
	if err := svc.Convert(ctx, p); err != nil {
		logger.Errorf(ctx, "❌  Failed to convert asset #%d into asset #%d: %v", p.AssetID, p.OutputAssetID, err)
		return err
	}

	logger.Infof(ctx, "✅  Successfully converted asset #%d into asset #%d", p.AssetID, p.OutputAssetID)
	return nil
}
