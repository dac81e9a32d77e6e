package asset

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/model"
	"github.com/fhuszti/assets-ms-go/internal/port"
)

type videoConverterSrv struct {
	repo       port.AssetRepository
	store      port.FileStore
	queue      port.TranscodeQueue
	dispatcher port.TranscodeDispatcher
	workDir    string
	now        port.Clock
}

// compile-time check: *videoConverterSrv must satisfy port.VideoConverter
var _ port.VideoConverter = (*videoConverterSrv)(nil)

type ConverterDeps struct {
	Repo       port.AssetRepository
	Store      port.FileStore
	Queue      port.TranscodeQueue
	Dispatcher port.TranscodeDispatcher
	// WorkDir holds transcoding inputs and outputs when the store is not disk backed.
	WorkDir string
	Now     port.Clock
}

// NewVideoConverter constructs a port.VideoConverter implementation.
// Queue may be nil in processes that only dispatch conversions.
func NewVideoConverter(deps ConverterDeps) port.VideoConverter {
	if deps.WorkDir == "" {
		deps.WorkDir = os.TempDir()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &videoConverterSrv{
		repo:       deps.Repo,
		store:      deps.Store,
		queue:      deps.Queue,
		dispatcher: deps.Dispatcher,
		workDir:    deps.WorkDir,
		now:        deps.Now,
	}
}

// ProgressID encodes an output path into the identifier polled by clients.
func ProgressID(output string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(output))
}

// ParseProgressID reverses ProgressID.
func ParseProgressID(id string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ScheduleConversion registers the web version of a video asset and hands
// its conversion over to the dispatcher.
func (s *videoConverterSrv) ScheduleConversion(ctx context.Context, assetID int64) (port.ConversionOutput, error) {
	src, err := s.repo.GetByID(ctx, assetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return port.ConversionOutput{}, ErrAssetNotFound
		}
		return port.ConversionOutput{}, err
	}
	if !src.Ready() {
		return port.ConversionOutput{}, ErrNotReady
	}
	if src.MimeType == nil || !IsVideo(*src.MimeType) {
		return port.ConversionOutput{}, ErrNotVideo
	}

	now := s.now()
	stem := fmt.Sprintf("%d", src.ID)
	if src.Filename != nil {
		stem = *src.Filename
	}
	ext, mt := WebVideoExtension, WebVideoMimeType
	out := &model.Asset{
		ChannelID:     src.ChannelID,
		UserID:        src.UserID,
		Filename:      &stem,
		Extension:     &ext,
		MimeType:      &mt,
		Created:       now,
		LastReference: now,
		InFlight:      true,
	}
	if err := s.repo.Create(ctx, out); err != nil {
		return port.ConversionOutput{}, fmt.Errorf("create output asset: %w", err)
	}

	req := port.TranscodeRequest{AssetID: src.ID, OutputAssetID: out.ID}
	if err := s.dispatcher.EnqueueTranscode(ctx, req); err != nil {
		if markErr := s.repo.MarkFailed(ctx, out.ID, err.Error(), s.now()); markErr != nil {
			logger.Warnf(ctx, "⚠️  Could not mark asset #%d failed: %v", out.ID, markErr)
		}
		return port.ConversionOutput{}, fmt.Errorf("dispatch conversion: %w", err)
	}

	logger.Infof(ctx, "Scheduled conversion of asset #%d into #%d", src.ID, out.ID)
	return port.ConversionOutput{Asset: out, ProgressID: ProgressID(s.outputPath(out))}, nil
}

// Submit queues the conversion and returns without waiting for it.
func (s *videoConverterSrv) Submit(ctx context.Context, req port.TranscodeRequest) error {
	return s.submit(ctx, req, nil)
}

// Convert queues the conversion and waits until it is over.
func (s *videoConverterSrv) Convert(ctx context.Context, req port.TranscodeRequest) error {
	done := make(chan bool, 1)
	if err := s.submit(ctx, req, func(ok bool) { done <- ok }); err != nil {
		return err
	}
	select {
	case ok := <-done:
		if !ok {
			return fmt.Errorf("conversion of asset #%d failed", req.AssetID)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *videoConverterSrv) submit(ctx context.Context, req port.TranscodeRequest, done func(ok bool)) error {
	if s.queue == nil {
		return errors.New("no transcoding queue in this process")
	}
	src, err := s.repo.GetByID(ctx, req.AssetID)
	if err != nil {
		return fmt.Errorf("load source asset #%d: %w", req.AssetID, err)
	}
	out, err := s.repo.GetByID(ctx, req.OutputAssetID)
	if err != nil {
		return fmt.Errorf("load output asset #%d: %w", req.OutputAssetID, err)
	}

	input, release, err := s.inputPath(ctx, src)
	if err != nil {
		s.fail(out, err)
		return err
	}
	output := s.outputPath(out)
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		release()
		s.fail(out, err)
		return err
	}

	err = s.queue.EnqueueTask(input, output, func(ok bool) {
		release()
		ok = s.finalise(out, output, ok)
		if done != nil {
			done(ok)
		}
	})
	if err != nil {
		release()
		s.fail(out, err)
		return fmt.Errorf("enqueue transcoding: %w", err)
	}
	return nil
}

// inputPath makes the source file available on disk. release removes any
// temporary copy.
func (s *videoConverterSrv) inputPath(ctx context.Context, src *model.Asset) (string, func(), error) {
	if p, ok := s.store.LocalPath(src.ObjectKey()); ok {
		return p, func() {}, nil
	}

	r, err := s.store.Open(ctx, src.ObjectKey())
	if err != nil {
		return "", nil, fmt.Errorf("open source asset #%d: %w", src.ID, err)
	}
	defer r.Close()

	if err := os.MkdirAll(s.workDir, 0o755); err != nil {
		return "", nil, err
	}
	f, err := os.CreateTemp(s.workDir, fmt.Sprintf("src-%d-*%s", src.ID, src.Ext()))
	if err != nil {
		return "", nil, err
	}
	release := func() { _ = os.Remove(f.Name()) }
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		release()
		return "", nil, fmt.Errorf("copy source asset #%d: %w", src.ID, err)
	}
	if err := f.Close(); err != nil {
		release()
		return "", nil, err
	}
	return f.Name(), release, nil
}

// outputPath is where the encoder writes. It only depends on the asset so
// the API and the worker agree on progress keys.
func (s *videoConverterSrv) outputPath(out *model.Asset) string {
	if p, ok := s.store.LocalPath(out.ObjectKey()); ok {
		return p
	}
	return filepath.Join(s.workDir, filepath.FromSlash(out.ObjectKey()))
}

func (s *videoConverterSrv) finalise(out *model.Asset, output string, ok bool) bool {
	ctx := context.Background()
	if !ok {
		s.fail(out, errors.New("transcoding failed"))
		return false
	}

	size, err := s.publish(ctx, out, output)
	if err != nil {
		s.fail(out, err)
		return false
	}
	if err := s.repo.MarkFetched(ctx, out.ID, WebVideoMimeType, size, s.now()); err != nil {
		logger.Errorf(ctx, "❌  Could not finalise asset #%d: %v", out.ID, err)
		return false
	}
	logger.Infof(ctx, "✅  Asset #%d converted", out.ID)
	return true
}

// publish moves an encoder output living outside the store into it.
func (s *videoConverterSrv) publish(ctx context.Context, out *model.Asset, output string) (int64, error) {
	if _, ok := s.store.LocalPath(out.ObjectKey()); ok {
		info, err := s.store.Stat(ctx, out.ObjectKey())
		if err != nil {
			return 0, err
		}
		return info.SizeBytes, nil
	}

	f, err := os.Open(output)
	if err != nil {
		return 0, err
	}
	defer func() {
		f.Close()
		_ = os.Remove(output)
	}()
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if err := s.store.Save(ctx, out.ObjectKey(), f, info.Size(), WebVideoMimeType); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *videoConverterSrv) fail(out *model.Asset, reason error) {
	ctx := context.Background()
	logger.Errorf(ctx, "❌  Conversion into asset #%d failed: %v", out.ID, reason)
	if err := s.repo.MarkFailed(ctx, out.ID, reason.Error(), s.now()); err != nil {
		logger.Warnf(ctx, "⚠️  Could not mark asset #%d failed: %v", out.ID, err)
	}
}
