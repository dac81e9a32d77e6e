package port

import "context"

// Transcoder converts a video file into the web playback format.
type Transcoder interface {
	Transcode(ctx context.Context, input, output string, onProgress func(float64)) error
}

// TranscodeQueue runs transcoding jobs one after the other.
type TranscodeQueue interface {
	EnqueueTask(input, output string, callback func(ok bool)) error
	GetProgress(ctx context.Context, output string) (float64, bool)
}

// ProgressStore keeps the fractional progress of transcoding jobs by output path.
type ProgressStore interface {
	Set(ctx context.Context, key string, value float64) error
	Get(ctx context.Context, key string) (float64, bool, error)
}

type TranscodeRequest struct {
	AssetID       int64 `json:"asset_id"`
	OutputAssetID int64 `json:"output_asset_id"`
}

// TranscodeDispatcher hands a conversion to whichever process runs the queue.
type TranscodeDispatcher interface {
	EnqueueTranscode(ctx context.Context, req TranscodeRequest) error
}
