// Package board - timelapse.go
//
// Asynchronous timelapse rendering. A job replays a saved board's strokes
// onto a canvas frame by frame, downscales the frames, and hands them to an
// external ffmpeg binary for MP4 encoding. Job state lives in memory; the
// video lands under timelapses/<jobId>.mp4.
package board

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/logging"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/metrics"
)

// Job states.
const (
	JobQueued     = "QUEUED"
	JobProcessing = "PROCESSING"
	JobCompleted  = "COMPLETED"
	JobFailed     = "FAILED"
)

const (
	canvasWidth  = 1280
	canvasHeight = 800
	outputWidth  = 640
	frameRate    = 10
)

// ErrJobNotFound reports an unknown jobId.
var ErrJobNotFound = fmt.Errorf("timelapse job not found")

// JobStatus is the externally visible state of one job.
type JobStatus struct {
	JobID    string `json:"jobId"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
	VideoURL string `json:"videoUrl,omitempty"`
}

// strokeLine is the drawable subset of a draw envelope.
type strokeLine struct {
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	X2    float64 `json:"x2"`
	Y2    float64 `json:"y2"`
	Color string  `json:"color"`
	Size  float64 `json:"size"`
}

// JobManager runs timelapse jobs. One goroutine per job; status polled over
// HTTP.
type JobManager struct {
	store *Service

	mu   sync.Mutex
	jobs map[string]*JobStatus
}

// NewJobManager creates a JobManager backed by the given board store.
func NewJobManager(store *Service) *JobManager {
	return &JobManager{
		store: store,
		jobs:  make(map[string]*JobStatus),
	}
}

// Generate starts a timelapse render for a saved board and returns the jobId.
// The board must exist; rendering happens in the background.
func (m *JobManager) Generate(boardID string, durationSeconds int) (string, error) {
	boardData, err := m.store.Load(boardID)
	if err != nil {
		return "", err
	}
	if durationSeconds <= 0 {
		durationSeconds = 10
	}

	jobID := "job-" + uuid.NewString()[:8]
	m.mu.Lock()
	m.jobs[jobID] = &JobStatus{JobID: jobID, Status: JobQueued, Message: "Job queued"}
	m.mu.Unlock()
	metrics.TimelapseJobs.WithLabelValues("queued").Inc()

	go m.run(jobID, boardData, durationSeconds)
	return jobID, nil
}

// Status returns a copy of the job's current state.
func (m *JobManager) Status(jobID string) (JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return JobStatus{}, ErrJobNotFound
	}
	return *job, nil
}

// VideoPath returns the path of a completed job's MP4.
func (m *JobManager) VideoPath(jobID string) (string, error) {
	status, err := m.Status(jobID)
	if err != nil {
		return "", err
	}
	if status.Status != JobCompleted {
		return "", fmt.Errorf("timelapse %s not ready: %s", jobID, status.Status)
	}
	return filepath.Join(m.store.TimelapsesDir(), jobID+".mp4"), nil
}

func (m *JobManager) update(jobID, status string, progress int, message, videoURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok {
		job.Status = status
		job.Progress = progress
		job.Message = message
		job.VideoURL = videoURL
	}
}

// run renders all frames then encodes them. Runs in its own goroutine.
func (m *JobManager) run(jobID string, boardData *BoardData, durationSeconds int) {
	ctx := context.Background()
	m.update(jobID, JobProcessing, 0, "Rendering frames", "")
	metrics.TimelapseJobs.WithLabelValues("processing").Inc()

	framesDir, err := os.MkdirTemp("", "timelapse-"+jobID+"-*")
	if err != nil {
		m.fail(ctx, jobID, err)
		return
	}
	defer os.RemoveAll(framesDir)

	strokes := decodeStrokes(boardData.Strokes)
	frameCount := durationSeconds * frameRate
	if frameCount < 1 {
		frameCount = 1
	}

	canvas := image.NewRGBA(image.Rect(0, 0, canvasWidth, canvasHeight))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	drawn := 0
	for frame := 0; frame < frameCount; frame++ {
		// Cumulative replay: each frame adds its share of the strokes.
		target := (frame + 1) * len(strokes) / frameCount
		for ; drawn < target; drawn++ {
			drawStroke(canvas, strokes[drawn])
		}

		small := resize.Resize(outputWidth, 0, canvas, resize.Bilinear)
		if err := writeFrame(framesDir, frame, small); err != nil {
			m.fail(ctx, jobID, err)
			return
		}
		m.update(jobID, JobProcessing, frame*90/frameCount, "Rendering frames", "")
	}

	m.update(jobID, JobProcessing, 90, "Encoding video", "")
	videoPath := filepath.Join(m.store.TimelapsesDir(), jobID+".mp4")
	if err := encodeVideo(ctx, framesDir, videoPath); err != nil {
		m.fail(ctx, jobID, err)
		return
	}

	videoURL := "/api/boards/timelapse-video/" + jobID
	m.update(jobID, JobCompleted, 100, "Timelapse ready", videoURL)
	metrics.TimelapseJobs.WithLabelValues("completed").Inc()
	logging.Info(ctx, "Timelapse completed",
		zap.String("jobId", jobID), zap.String("board", boardData.BoardID))
}

func (m *JobManager) fail(ctx context.Context, jobID string, err error) {
	m.update(jobID, JobFailed, 0, err.Error(), "")
	metrics.TimelapseJobs.WithLabelValues("failed").Inc()
	logging.Error(ctx, "Timelapse failed", zap.String("jobId", jobID), zap.Error(err))
}

func decodeStrokes(raw []json.RawMessage) []strokeLine {
	strokes := make([]strokeLine, 0, len(raw))
	for _, entry := range raw {
		var s strokeLine
		if err := json.Unmarshal(entry, &s); err != nil {
			continue
		}
		strokes = append(strokes, s)
	}
	return strokes
}

// drawStroke rasterizes one line segment with a square brush.
func drawStroke(canvas *image.RGBA, s strokeLine) {
	col := parseHexColor(s.Color)
	radius := int(s.Size / 2)
	if radius < 1 {
		radius = 1
	}

	dx := s.X2 - s.X1
	dy := s.Y2 - s.Y1
	steps := int(max64(abs64(dx), abs64(dy))) + 1
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := int(s.X1 + dx*t)
		y := int(s.Y1 + dy*t)
		for ox := -radius; ox <= radius; ox++ {
			for oy := -radius; oy <= radius; oy++ {
				px, py := x+ox, y+oy
				if px >= 0 && px < canvasWidth && py >= 0 && py < canvasHeight {
					canvas.Set(px, py, col)
				}
			}
		}
	}
}

func parseHexColor(s string) color.RGBA {
	if len(s) != 7 || s[0] != '#' {
		return color.RGBA{A: 255}
	}
	r, err1 := strconv.ParseUint(s[1:3], 16, 8)
	g, err2 := strconv.ParseUint(s[3:5], 16, 8)
	b, err3 := strconv.ParseUint(s[5:7], 16, 8)
	if err1 != nil || err2 != nil || err3 != nil {
		return color.RGBA{A: 255}
	}
	return color.RGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255}
}

func writeFrame(dir string, index int, img image.Image) error {
	f, err := os.Create(filepath.Join(dir, fmt.Sprintf("frame-%05d.png", index)))
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// encodeVideo shells out to ffmpeg, the external renderer.
func encodeVideo(ctx context.Context, framesDir, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y",
		"-framerate", strconv.Itoa(frameRate),
		"-i", filepath.Join(framesDir, "frame-%05d.png"),
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		outPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, truncate(string(out), 300))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func abs64(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
