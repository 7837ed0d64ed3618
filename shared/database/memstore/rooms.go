package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"
)

var _ interfaces.RoomRepository = (*RoomStore)(nil)

type RoomStore struct {
	mu    sync.Mutex
	rooms map[string]models.Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]models.Room)}
}

func (s *RoomStore) Put(_ context.Context, room *models.Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room.Version = 1
	s.rooms[room.HostID] = clone(*room)
	return nil
}

func (s *RoomStore) Get(_ context.Context, hostID string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[hostID]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := clone(room)
	return &out, nil
}

func (s *RoomStore) Update(_ context.Context, room *models.Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.rooms[room.HostID]
	if !ok {
		return models.ErrNotFound
	}
	if current.Version != room.Version {
		return fmt.Errorf("%w: room %s is at version %d, expected %d", models.ErrConflict, room.HostID, current.Version, room.Version)
	}
	room.Version++
	s.rooms[room.HostID] = clone(*room)
	return nil
}

func (s *RoomStore) Delete(_ context.Context, hostID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, hostID)
	return nil
}

func (s *RoomStore) List(_ context.Context) ([]models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].HostID < out[j].HostID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
