package mediapool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"
)

// Service hosts one Registry and the players registered in each container.
// It is the entry point used by the HTTP handler.
type Service struct {
	mu       sync.RWMutex
	registry *Registry
	store    Store
	log      *slog.Logger
}

// NewService returns a Service over registry and store.
func NewService(registry *Registry, store Store, log *slog.Logger) *Service {
	return &Service{registry: registry, store: store, log: log}
}

// PlayerSpec describes a player to register.
type PlayerSpec struct {
	ID         PlayerID
	Type       MediaType
	Distance   float64
	Sources    []Source
	Attributes map[string]string
}

// CreateContainer creates a container with a fresh id and its pool.
func (s *Service) CreateContainer() ContainerID {
	id := ContainerID(uuid.NewString())
	s.registry.PoolFor(id)
	s.log.Info("container created", slog.String("container", string(id)))
	return id
}

// DeleteContainer destroys every player of the container and tears its pool
// down.
func (s *Service) DeleteContainer(id ContainerID) error {
	if !s.registry.HasPool(id) {
		return ErrContainerNotFound
	}

	s.mu.Lock()
	players := s.store.DeleteContainer(id)
	s.mu.Unlock()

	for _, p := range players {
		p.Binding.Destroy()
	}
	s.registry.Teardown(id)
	s.log.Info("container deleted",
		slog.String("container", string(id)),
		slog.Int("players", len(players)))
	return nil
}

// Containers returns the ids of all live containers.
func (s *Service) Containers() []ContainerID {
	return s.registry.Containers()
}

// SetVisible marks the container fully visible, releasing deferred original
// sources.
func (s *Service) SetVisible(id ContainerID) error {
	pool, ok := s.registry.Lookup(id)
	if !ok {
		return ErrContainerNotFound
	}
	pool.SetVisible()
	return nil
}

// Bless starts blessing the container's pool. ctx should carry the user
// gesture marker.
func (s *Service) Bless(ctx context.Context, id ContainerID) (*Future, error) {
	pool, ok := s.registry.Lookup(id)
	if !ok {
		return nil, ErrContainerNotFound
	}
	return pool.BlessAll(ctx), nil
}

// PoolStats returns a snapshot of the container's pool.
func (s *Service) PoolStats(id ContainerID) (PoolStats, error) {
	pool, ok := s.registry.Lookup(id)
	if !ok {
		return PoolStats{}, ErrContainerNotFound
	}
	return pool.Stats(), nil
}

// RegisterPlayer creates and builds a binding described by ps in the container.
func (s *Service) RegisterPlayer(id ContainerID, ps PlayerSpec) (*Player, error) {
	pool, ok := s.registry.Lookup(id)
	if !ok {
		return nil, ErrContainerNotFound
	}
	if ps.ID == "" {
		return nil, fmt.Errorf("register player: empty id: %w", ErrInvalidState)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.store.GetPlayer(id, ps.ID); exists {
		return nil, ErrPlayerExists
	}

	p := newPlayer(id, ps.ID, ps.Distance)
	p.Binding = NewBinding(pool, BindingConfig{
		ID:         string(ps.ID),
		Type:       ps.Type,
		Attributes: ps.Attributes,
		Sources:    ps.Sources,
		Distance:   p.Distance,
		Logger:     s.log.With(slog.String("container", string(id))),
	})
	if err := p.Binding.Build(); err != nil {
		return nil, fmt.Errorf("build player %s: %w", ps.ID, err)
	}
	s.store.SetPlayer(p)
	return p, nil
}

// GetPlayer returns a registered player.
func (s *Service) GetPlayer(id ContainerID, pid PlayerID) (*Player, error) {
	if !s.registry.HasPool(id) {
		return nil, ErrContainerNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.store.GetPlayer(id, pid)
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return p, nil
}

// ListPlayers returns every player registered in the container.
func (s *Service) ListPlayers(id ContainerID) ([]*Player, error) {
	if !s.registry.HasPool(id) {
		return nil, ErrContainerNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.ListPlayers(id), nil
}

// SetDistance records a new proximity for the player. Passing +Inf marks it
// detached.
func (s *Service) SetDistance(id ContainerID, pid PlayerID, d float64) error {
	p, err := s.GetPlayer(id, pid)
	if err != nil {
		return err
	}
	p.SetDistance(d)
	return nil
}

// Layout lays the player out, requesting a slot if it holds none.
func (s *Service) Layout(id ContainerID, pid PlayerID) (*Readiness, error) {
	p, err := s.GetPlayer(id, pid)
	if err != nil {
		return nil, err
	}
	return p.Binding.Layout()
}

// Suspend releases the player's slot.
func (s *Service) Suspend(id ContainerID, pid PlayerID) error {
	p, err := s.GetPlayer(id, pid)
	if err != nil {
		return err
	}
	return p.Binding.Suspend()
}

// Play, Pause, Mute and Unmute are best-effort and only act on attached
// players.
func (s *Service) Play(ctx context.Context, id ContainerID, pid PlayerID) error {
	return s.withBinding(id, pid, func(b *Binding) { b.Play(ctx) })
}

func (s *Service) Pause(id ContainerID, pid PlayerID) error {
	return s.withBinding(id, pid, (*Binding).Pause)
}

func (s *Service) Mute(id ContainerID, pid PlayerID) error {
	return s.withBinding(id, pid, (*Binding).Mute)
}

func (s *Service) Unmute(id ContainerID, pid PlayerID) error {
	return s.withBinding(id, pid, (*Binding).Unmute)
}

// SignalCanPlay reports a can-play event on the player's slot, standing in
// for the media pipeline when auto-ready is off.
func (s *Service) SignalCanPlay(id ContainerID, pid PlayerID) error {
	el, err := s.memoryElement(id, pid)
	if err != nil {
		return err
	}
	el.SignalCanPlay()
	return nil
}

// SignalError reports a load error on the player's slot.
func (s *Service) SignalError(id ContainerID, pid PlayerID, cause error) error {
	el, err := s.memoryElement(id, pid)
	if err != nil {
		return err
	}
	el.SignalError(cause)
	return nil
}

// DestroyPlayer destroys the player's binding and forgets it.
func (s *Service) DestroyPlayer(id ContainerID, pid PlayerID) error {
	if !s.registry.HasPool(id) {
		return ErrContainerNotFound
	}

	s.mu.Lock()
	p, ok := s.store.GetPlayer(id, pid)
	if ok {
		s.store.DeletePlayer(id, pid)
	}
	s.mu.Unlock()

	if !ok {
		return ErrPlayerNotFound
	}
	p.Binding.Destroy()
	return nil
}

func (s *Service) withBinding(id ContainerID, pid PlayerID, fn func(b *Binding)) error {
	p, err := s.GetPlayer(id, pid)
	if err != nil {
		return err
	}
	fn(p.Binding)
	return nil
}

func (s *Service) memoryElement(id ContainerID, pid PlayerID) (*MemoryElement, error) {
	p, err := s.GetPlayer(id, pid)
	if err != nil {
		return nil, err
	}
	slot := p.Binding.Resource()
	if slot == nil {
		return nil, fmt.Errorf("player %s holds no slot: %w", pid, ErrInvalidState)
	}
	el, ok := slot.Element().(*MemoryElement)
	if !ok {
		return nil, errors.New("slot element cannot be signalled")
	}
	return el, nil
}

// DistanceOrNil maps +Inf to nil for JSON encoding, which has no infinity.
func DistanceOrNil(d float64) *float64 {
	if math.IsInf(d, 1) {
		return nil
	}
	return &d
}
