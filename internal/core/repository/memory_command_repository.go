package repository

import (
	"context"
	"fmt"
	"sync"

	"fleettrack/internal/core/model"
)

type inMemoryCommandRepository struct {
	commands map[string]*model.Command
	mutex    sync.RWMutex
}

func NewInMemoryCommandRepository() CommandRepository {
	return &inMemoryCommandRepository{
		commands: make(map[string]*model.Command),
	}
}

func (r *inMemoryCommandRepository) Create(_ context.Context, command *model.Command) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.commands[command.ID]; exists {
		return fmt.Errorf("command with ID %s already exists", command.ID)
	}
	c := *command
	r.commands[command.ID] = &c
	return nil
}

func (r *inMemoryCommandRepository) Update(_ context.Context, command *model.Command) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.commands[command.ID]; !exists {
		return fmt.Errorf("command %s: %w", command.ID, ErrNotFound)
	}
	c := *command
	r.commands[command.ID] = &c
	return nil
}

func (r *inMemoryCommandRepository) FindByID(_ context.Context, id string) (*model.Command, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if command, exists := r.commands[id]; exists {
		c := *command
		return &c, nil
	}
	return nil, nil
}

func (r *inMemoryCommandRepository) FindByServerFlag(_ context.Context, deviceID string, flag uint32) (*model.Command, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, command := range r.commands {
		if command.DeviceID == deviceID && command.ServerFlag == flag {
			c := *command
			return &c, nil
		}
	}
	return nil, nil
}

func (r *inMemoryCommandRepository) FindOldestSent(_ context.Context, deviceID string) (*model.Command, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var oldest *model.Command
	for _, command := range r.commands {
		if command.DeviceID != deviceID || command.Status != model.CommandSent {
			continue
		}
		if oldest == nil || command.SentAt.Before(*oldest.SentAt) {
			oldest = command
		}
	}
	if oldest == nil {
		return nil, nil
	}
	c := *oldest
	return &c, nil
}
