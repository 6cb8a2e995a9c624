package mediapool

import (
	"math"
	"sync/atomic"
)

// PlayerID identifies a logical player within a container.
type PlayerID string

// Player is a registered logical player: its binding plus the distance the
// host last reported for it.
type Player struct {
	ID        PlayerID
	Container ContainerID
	Binding   *Binding

	distance atomic.Uint64
}

func newPlayer(container ContainerID, id PlayerID, distance float64) *Player {
	p := &Player{ID: id, Container: container}
	p.SetDistance(distance)
	return p
}

// SetDistance records the player's proximity. It may be called at any time;
// the pool reads it on its next decision.
func (p *Player) SetDistance(d float64) {
	p.distance.Store(math.Float64bits(normalizeDistance(d)))
}

// Distance returns the last recorded proximity.
func (p *Player) Distance() float64 {
	return math.Float64frombits(p.distance.Load())
}

// Store is the persistence abstraction for players.
// Implementations are not required to be safe for concurrent use; Service
// serialises access.
type Store interface {
	GetPlayer(container ContainerID, id PlayerID) (*Player, bool)
	SetPlayer(p *Player)
	DeletePlayer(container ContainerID, id PlayerID)
	ListPlayers(container ContainerID) []*Player
	DeleteContainer(container ContainerID) []*Player
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	players map[ContainerID]map[PlayerID]*Player
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		players: make(map[ContainerID]map[PlayerID]*Player),
	}
}

// GetPlayer implements Store.GetPlayer.
func (s *InMemoryStore) GetPlayer(container ContainerID, id PlayerID) (*Player, bool) {
	p, ok := s.players[container][id]
	return p, ok
}

// SetPlayer implements Store.SetPlayer.
func (s *InMemoryStore) SetPlayer(p *Player) {
	byID, ok := s.players[p.Container]
	if !ok {
		byID = make(map[PlayerID]*Player)
		s.players[p.Container] = byID
	}
	byID[p.ID] = p
}

// DeletePlayer implements Store.DeletePlayer.
func (s *InMemoryStore) DeletePlayer(container ContainerID, id PlayerID) {
	delete(s.players[container], id)
}

// ListPlayers implements Store.ListPlayers.
func (s *InMemoryStore) ListPlayers(container ContainerID) []*Player {
	byID := s.players[container]
	out := make([]*Player, 0, len(byID))
	for _, p := range byID {
		out = append(out, p)
	}
	return out
}

// DeleteContainer implements Store.DeleteContainer and returns the players
// that were removed.
func (s *InMemoryStore) DeleteContainer(container ContainerID) []*Player {
	out := s.ListPlayers(container)
	delete(s.players, container)
	return out
}
