package camera

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/snap.jpg", r.URL.Path)
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	cam := NewCamera("camera.front_door", "", srv.URL+"/snap.jpg")
	data, err := cam.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)
	assert.Equal(t, "ok", cam.GetStatus())
	assert.Equal(t, "front_door", cam.Name)
}

func TestSnapshotHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cam := NewCamera("camera.yard", "Yard", srv.URL)
	_, err := cam.Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, "error", cam.GetStatus())
	assert.Error(t, cam.LastError())
}

func TestSnapshotFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "still.jpg")
	require.NoError(t, os.WriteFile(path, []byte("still"), 0o644))

	cam := NewCamera("camera.garage", "Garage", path)
	data, err := cam.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("still"), data)
}

func TestSnapshotNoSource(t *testing.T) {
	cam := NewCamera("camera.none", "", "")
	_, err := cam.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestObjectID(t *testing.T) {
	assert.Equal(t, "front_door", ObjectID("camera.front_door"))
	assert.Equal(t, "plain", ObjectID("plain"))
}

func TestCameraManager(t *testing.T) {
	cm := NewCameraManager()

	require.NoError(t, cm.AddCamera(NewCamera("camera.b", "", "http://example.invalid/b.jpg")))
	require.NoError(t, cm.AddCamera(NewCamera("camera.a", "", "")))
	assert.Error(t, cm.AddCamera(NewCamera("camera.c", "", "/does/not/exist.jpg")))
	assert.Error(t, cm.AddCamera(NewCamera("", "", "")))

	list := cm.ListCameras()
	require.Len(t, list, 2)
	assert.Equal(t, "camera.b", list[0].ID)
	assert.Equal(t, "camera.a", list[1].ID)

	_, err := cm.GetCamera("camera.c")
	assert.ErrorIs(t, err, ErrCameraNotFound)

	cam, err := cm.GetCamera("camera.a")
	require.NoError(t, err)
	assert.Equal(t, "a", cam.Name)

	// re-adding keeps the original position
	require.NoError(t, cm.AddCamera(NewCamera("camera.b", "B", "http://example.invalid/b2.jpg")))
	list = cm.ListCameras()
	require.Len(t, list, 2)
	assert.Equal(t, "B", list[0].Name)
}

func TestStatusTracksLastSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "still.jpg")
	cam := NewCamera("camera.garage", "", path)
	assert.Equal(t, "idle", cam.GetStatus())
	assert.True(t, cam.LastSnapshot().IsZero())

	_, err := cam.Snapshot(context.Background())
	require.Error(t, err)
	assert.Equal(t, "error", cam.GetStatus())

	require.NoError(t, os.WriteFile(path, []byte("still"), 0o644))
	_, err = cam.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", cam.GetStatus())
	assert.NoError(t, cam.LastError())
	assert.False(t, cam.LastSnapshot().IsZero())
}
