package services

import (
	"context"

	"hound/internal/camera"
)

// CameraImplementation implements the camera service
type CameraImplementation struct {
	manager *camera.CameraManager
}

// NewCameraService creates a new camera service implementation
func NewCameraService(manager *camera.CameraManager) *CameraImplementation {
	return &CameraImplementation{manager: manager}
}

// List returns all snapshot sources in configuration order
func (s *CameraImplementation) List(ctx context.Context) ([]*CameraInfo, error) {
	cameras := s.manager.ListCameras()
	result := make([]*CameraInfo, len(cameras))
	for i, c := range cameras {
		result[i] = cameraInfo(c)
	}
	return result, nil
}

// Get returns one snapshot source
func (s *CameraImplementation) Get(ctx context.Context, id string) (*CameraInfo, error) {
	c, err := s.manager.GetCamera(id)
	if err != nil {
		return nil, &NotFoundError{Message: "Camera not found", ID: id}
	}
	return cameraInfo(c), nil
}
