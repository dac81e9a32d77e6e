package testutil

import (
	"context"
	"io"
	"os"
	"time"

	workerHandler "github.com/fhuszti/assets-ms-go/internal/handler/worker"
	"github.com/fhuszti/assets-ms-go/internal/port"
	"github.com/fhuszti/assets-ms-go/internal/progress"
	"github.com/fhuszti/assets-ms-go/internal/task"
	"github.com/fhuszti/assets-ms-go/internal/transcode"
	"github.com/fhuszti/assets-ms-go/internal/usecase/asset"
	"github.com/hibiken/asynq"

	"github.com/fhuszti/assets-ms-go/internal/logger"
)

// CopyTranscoder stands in for ffmpeg: it copies the input and reports
// progress in quarters.
type CopyTranscoder struct{}

func (CopyTranscoder) Transcode(ctx context.Context, input, output string, onProgress func(float64)) error {
	in, err := os.Open(input)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(output)
	if err != nil {
		return err
	}
	defer out.Close()

	for _, p := range []float64{0.25, 0.5, 0.75} {
		onProgress(p)
	}
	_, err = io.Copy(out, in)
	return err
}

// StartWorker runs the transcode task handler the way cmd/worker does.
// It returns a function to gracefully shut down the worker.
func StartWorker(repo port.AssetRepository, strg port.FileStore, redisAddr, workDir string, transcoder port.Transcoder) func() {
	store := progress.NewRedisStore(redisAddr, "", time.Hour)
	queue := transcode.NewQueue(transcoder, store)
	queue.Start()

	convertSvc := asset.NewVideoConverter(asset.ConverterDeps{
		Repo:    repo,
		Store:   strg,
		Queue:   queue,
		WorkDir: workDir,
		Now:     time.Now,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(task.TypeTranscodeVideo, func(ctx context.Context, t *asynq.Task) error {
		p, err := task.ParseTranscodePayload(t)
		if err != nil {
			return err
		}
		return workerHandler.TranscodeVideoHandler(ctx, p, convertSvc)
	})

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{task.QueueTranscode: 1},
	})
	if err := srv.Start(mux); err != nil {
		logger.Errorf(context.Background(), "worker stopped: %v", err)
	}

	return func() {
		srv.Shutdown()
		queue.Stop()
		_ = store.Close()
	}
}
