package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// SourceWebcam captures from a gocv VideoCapture device or stream URL.
	SourceWebcam = "webcam"
	// SourceSynthetic generates a test pattern at a fixed frame rate.
	SourceSynthetic = "synthetic"
	// SourceUDP reassembles JPEG frames pushed by a network camera over UDP.
	SourceUDP = "udp"

	udpBasePort = 9000
)

// CameraConfig describes one attached source.
type CameraConfig struct {
	Port   int     `json:"port"`
	Kind   string  `json:"kind"`
	Device string  `json:"device,omitempty"`
	FPS    float64 `json:"fps,omitempty"`
}

// Session lists the sources a synchronizer is built from.
type Session struct {
	Cameras []CameraConfig `json:"cameras"`
}

func defaultSession() *Session {
	return &Session{
		Cameras: []CameraConfig{
			{Port: 0, Kind: SourceSynthetic, FPS: 30},
			{Port: 1, Kind: SourceSynthetic, FPS: 30},
		},
	}
}

// LoadSession reads the session file, returning the default session if it doesn't exist.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaultSession(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading session file: %w", err)
	}

	session, err := ParseSession(data)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", path, err)
	}
	return session, nil
}

// ParseSession decodes a session, fills in defaults and validates it.
func ParseSession(data []byte) (*Session, error) {
	session := &Session{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("error unmarshalling session: %w", err)
	}

	seen := make(map[int]bool, len(session.Cameras))
	for i := range session.Cameras {
		cam := &session.Cameras[i]
		if cam.Kind == "" {
			cam.Kind = SourceWebcam
		}
		switch cam.Kind {
		case SourceWebcam:
			if cam.Device == "" {
				cam.Device = fmt.Sprint(cam.Port)
			}
		case SourceSynthetic:
			if cam.FPS <= 0 {
				cam.FPS = 30
			}
		case SourceUDP:
			// Device is the listen address
			if cam.Device == "" {
				cam.Device = fmt.Sprintf(":%d", udpBasePort+cam.Port)
			}
		default:
			return nil, fmt.Errorf("camera at port %d: unknown kind %q", cam.Port, cam.Kind)
		}
		if seen[cam.Port] {
			return nil, fmt.Errorf("duplicate camera port %d", cam.Port)
		}
		seen[cam.Port] = true
	}

	if len(session.Cameras) == 0 {
		return nil, fmt.Errorf("no cameras configured")
	}
	return session, nil
}

// SaveSession writes the session as indented JSON, creating the directory if needed.
func SaveSession(path string, session *Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating session directory: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshalling session: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing session file: %w", err)
	}
	return nil
}
