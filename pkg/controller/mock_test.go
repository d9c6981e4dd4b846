package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/facewatch/facewatch/pkg/camera"
	"github.com/facewatch/facewatch/pkg/detect"
	"github.com/facewatch/facewatch/pkg/store"
)

// stubDetector returns a fixed region set, swapped by the test between
// phases to simulate a face entering and leaving the frame.
type stubDetector struct {
	regions []detect.Region
}

func (d *stubDetector) Detect(camera.Frame) []detect.Region {
	return d.regions
}

// memStore is an in-memory Store implementation recording every write.
type memStore struct {
	mu         sync.Mutex
	users      []store.User
	templates  map[string]store.FaceTemplate
	attendance []store.AttendanceRecord
	events     []store.SecurityEvent
	nextID     int
}

func newMemStore() *memStore {
	return &memStore{templates: make(map[string]store.FaceTemplate)}
}

func (m *memStore) CreateUser(_ context.Context, name string, tmpl store.FaceTemplate) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Name == name {
			return store.User{}, store.ErrDuplicateUser
		}
	}
	m.nextID++
	user := store.User{
		ID:        fmt.Sprintf("user-%d", m.nextID),
		Name:      name,
		CreatedAt: time.Now(),
	}
	m.users = append(m.users, user)
	m.templates[user.ID] = tmpl
	return user, nil
}

func (m *memStore) UserExists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) LoadTemplates(context.Context) ([]store.UserTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.UserTemplate
	for _, u := range m.users {
		out = append(out, store.UserTemplate{User: u, Template: m.templates[u.ID]})
	}
	return out, nil
}

func (m *memStore) InsertAttendance(_ context.Context, userID string) (store.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := store.AttendanceRecord{
		ID:        fmt.Sprintf("rec-%d", len(m.attendance)+1),
		UserID:    userID,
		Timestamp: time.Now(),
		Status:    store.StatusPresent,
	}
	m.attendance = append(m.attendance, rec)
	return rec, nil
}

func (m *memStore) InsertSecurityEvent(_ context.Context, ev store.SecurityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memStore) eventsOfType(eventType string) []store.SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.SecurityEvent
	for _, ev := range m.events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// stubSource replays a fixed frame sequence and then reports the context
// error, standing in for a camera.
type stubSource struct {
	frames []camera.Frame
	next   int
	closed bool
}

func (s *stubSource) Next(ctx context.Context) (camera.Frame, error) {
	if s.next >= len(s.frames) {
		return camera.Frame{}, context.Canceled
	}
	frame := s.frames[s.next]
	s.next++
	return frame, nil
}

func (s *stubSource) Close() error {
	s.closed = true
	return nil
}
