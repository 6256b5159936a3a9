package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	ErrCameraNotFound = errors.New("camera not found")
	ErrNoSource       = errors.New("camera has no snapshot source")
)

// maxSnapshotSize bounds HTTP snapshot bodies
const maxSnapshotSize = 32 << 20

// Camera is a still image source identified by its host entity id,
// e.g. camera.front_door
type Camera struct {
	ID     string
	Name   string
	Device string // http(s) snapshot URL, rtsp stream or local file

	mu         sync.RWMutex
	status     string
	lastError  error
	lastSnapAt time.Time
	httpClient *http.Client
}

// NewCamera creates a camera for a snapshot device
func NewCamera(id, name, device string) *Camera {
	if name == "" {
		name = ObjectID(id)
	}
	return &Camera{
		ID:         id,
		Name:       name,
		Device:     device,
		status:     "idle",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// ObjectID strips the domain from an entity id: camera.front_door -> front_door
func ObjectID(entityID string) string {
	if i := strings.Index(entityID, "."); i >= 0 {
		return entityID[i+1:]
	}
	return entityID
}

// Snapshot fetches one still image from the device
func (c *Camera) Snapshot(ctx context.Context) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	switch {
	case c.Device == "":
		err = fmt.Errorf("%w: %s", ErrNoSource, c.ID)
	case isHTTPSource(c.Device):
		data, err = c.fetchHTTP(ctx)
	case isNetworkSource(c.Device):
		data, err = c.captureFrameWithFfmpeg(ctx)
	default:
		data, err = os.ReadFile(c.Device)
		if err != nil {
			err = fmt.Errorf("failed to read snapshot file: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = err
	if err != nil {
		c.status = "error"
		return nil, err
	}
	c.status = "ok"
	c.lastSnapAt = time.Now()
	return data, nil
}

// GetStatus returns the status of the last snapshot
func (c *Camera) GetStatus() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// LastError returns the error of the last snapshot, if any
func (c *Camera) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// LastSnapshot returns when the last successful snapshot was taken
func (c *Camera) LastSnapshot() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSnapAt
}

func (c *Camera) fetchHTTP(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Device, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot request returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("snapshot from %s is empty", c.ID)
	}
	return data, nil
}

// captureFrameWithFfmpeg grabs a single JPEG frame from a stream
func (c *Camera) captureFrameWithFfmpeg(ctx context.Context) ([]byte, error) {
	args := []string{
		"-y",
		"-rtsp_transport", "tcp",
		"-i", c.Device,
		"-vframes", "1",
		"-f", "mjpeg",
		"-q:v", "2",
		"-",
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w (stderr: %s)", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func isHTTPSource(device string) bool {
	return strings.HasPrefix(device, "http://") || strings.HasPrefix(device, "https://")
}

// isNetworkSource checks if device is an HTTP/RTSP URL
func isNetworkSource(device string) bool {
	return isHTTPSource(device) || strings.HasPrefix(device, "rtsp://")
}

// CameraManager manages the configured cameras
type CameraManager struct {
	cameras map[string]*Camera
	order   []string
	mu      sync.RWMutex
}

// NewCameraManager creates an empty camera manager
func NewCameraManager() *CameraManager {
	return &CameraManager{
		cameras: make(map[string]*Camera),
	}
}

// AddCamera adds a camera, replacing any camera with the same ID
func (cm *CameraManager) AddCamera(camera *Camera) error {
	if camera == nil || camera.ID == "" {
		return fmt.Errorf("camera id cannot be empty")
	}
	if camera.Device != "" && !deviceExists(camera.Device) {
		return fmt.Errorf("camera device %s does not exist", camera.Device)
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.cameras[camera.ID]; !exists {
		cm.order = append(cm.order, camera.ID)
	}
	cm.cameras[camera.ID] = camera
	log.Infof("[Camera] Added %s (%s)", camera.ID, camera.Name)
	return nil
}

// GetCamera retrieves a camera by ID
func (cm *CameraManager) GetCamera(id string) (*Camera, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	camera, exists := cm.cameras[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrCameraNotFound, id)
	}
	return camera, nil
}

// ListCameras returns all cameras in the order they were added
func (cm *CameraManager) ListCameras() []*Camera {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	cameras := make([]*Camera, 0, len(cm.order))
	for _, id := range cm.order {
		cameras = append(cameras, cm.cameras[id])
	}
	return cameras
}

// deviceExists checks if a local snapshot file exists.
// Network sources are checked when a snapshot is taken.
func deviceExists(device string) bool {
	if isNetworkSource(device) {
		return true
	}
	_, err := os.Stat(device)
	return err == nil
}
