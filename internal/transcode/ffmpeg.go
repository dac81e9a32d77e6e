package transcode

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/port"
)

// tailLines is how much encoder output is kept for error messages.
const tailLines = 20

var frameRe = regexp.MustCompile(`frame=\s*(\d+)\s*fps`)

// FFmpegTranscoder encodes videos to VP9 webm with the ffmpeg binary.
type FFmpegTranscoder struct {
	FFmpeg  string
	FFprobe string
	Threads int
}

// compile-time check: *FFmpegTranscoder must satisfy port.Transcoder
var _ port.Transcoder = (*FFmpegTranscoder)(nil)

func NewFFmpegTranscoder(ffmpeg, ffprobe string, threads int) *FFmpegTranscoder {
	if threads < 1 {
		threads = 1
	}
	return &FFmpegTranscoder{FFmpeg: ffmpeg, FFprobe: ffprobe, Threads: threads}
}

func (t *FFmpegTranscoder) Transcode(ctx context.Context, input, output string, onProgress func(float64)) error {
	total, err := t.countFrames(ctx, input)
	if err != nil {
		// progress is simply not reported
		logger.Warnf(ctx, "⚠️  Could not count frames of %q: %v", input, err)
	}

	cmd := exec.CommandContext(ctx, t.FFmpeg, t.args(input, output)...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	tail := scanProgress(stderr, total, onProgress)
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w\n%s", err, strings.Join(tail, "\n"))
	}
	return nil
}

func (t *FFmpegTranscoder) args(input, output string) []string {
	return []string{
		"-y",
		"-i", input,
		"-c:v", "libvpx-vp9",
		"-crf", "31",
		"-b:v", "0",
		"-b:a", "192k",
		"-threads", strconv.Itoa(t.Threads),
		output,
	}
}

func (t *FFmpegTranscoder) countFrames(ctx context.Context, input string) (int64, error) {
	cmd := exec.CommandContext(ctx, t.FFprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=nb_read_packets",
		"-of", "csv=p=0",
		input,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, err
	}
	return parseFrameCount(out)
}

func parseFrameCount(out []byte) (int64, error) {
	s := strings.TrimSpace(string(out))
	// some containers report a trailing separator
	s = strings.TrimSuffix(s, ",")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe output %q", s)
	}
	return n, nil
}

// scanProgress reads encoder output until EOF, reporting frame based
// progress, and returns the last lines read.
func scanProgress(r io.Reader, total int64, onProgress func(float64)) []string {
	sc := bufio.NewScanner(r)
	sc.Split(splitLines)

	var tail []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		tail = append(tail, line)
		if len(tail) > tailLines {
			tail = tail[1:]
		}

		if total <= 0 || onProgress == nil {
			continue
		}
		m := frameRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		frame, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		p := float64(frame) / float64(total)
		if p > 1 {
			p = 1
		}
		onProgress(p)
	}
	// drain so the process never blocks on a full pipe
	_, _ = io.Copy(io.Discard, r)
	return tail
}

// splitLines is bufio.ScanLines that also breaks on carriage returns,
// which ffmpeg uses to redraw its status line.
func splitLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
