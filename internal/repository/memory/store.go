// Package memory is an in-process implementation of the repository
// interfaces. Transactions copy the tables on begin and swap them in on
// commit, so a failed transaction leaves nothing behind.
package memory

import (
	"context"
	"sync"

	"parkaro/internal/domain"
	"parkaro/internal/repository"
)

type tables struct {
	users            map[int]domain.User
	parkingSessions  map[int]domain.ParkingSession
	chargingSessions map[int]domain.ChargingSession
	payments         map[int]domain.Payment
	sensorEvents     []domain.SensorEventLog
	nextID           map[string]int
}

func newTables() *tables {
	return &tables{
		users:            map[int]domain.User{},
		parkingSessions:  map[int]domain.ParkingSession{},
		chargingSessions: map[int]domain.ChargingSession{},
		payments:         map[int]domain.Payment{},
		nextID:           map[string]int{},
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.parkingSessions {
		c.parkingSessions[k] = v
	}
	for k, v := range t.chargingSessions {
		c.chargingSessions[k] = v
	}
	for k, v := range t.payments {
		c.payments[k] = v
	}
	c.sensorEvents = append(c.sensorEvents, t.sensorEvents...)
	for k, v := range t.nextID {
		c.nextID[k] = v
	}
	return c
}

func (t *tables) id(table string) int {
	t.nextID[table]++
	return t.nextID[table]
}

// access runs fn against the tables it guards.
type access func(fn func(t *tables) error) error

type Store struct {
	mu   sync.Mutex
	data *tables
}

func NewStore() *Store {
	return &Store{data: newTables()}
}

func (s *Store) locked(fn func(t *tables) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func reposFor(a access) repository.Repositories {
	return repository.Repositories{
		Users:            &userRepository{do: a},
		ParkingSessions:  &parkingSessionRepository{do: a},
		ChargingSessions: &chargingSessionRepository{do: a},
		Payments:         &paymentRepository{do: a},
		SensorEvents:     &sensorEventLogRepository{do: a},
	}
}

func (s *Store) Repositories() repository.Repositories {
	return reposFor(s.locked)
}

// WithinTx holds the store lock for the whole transaction, so transactions
// are serializable.
func (s *Store) WithinTx(ctx context.Context, fn func(repos repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.data.clone()
	direct := func(f func(t *tables) error) error { return f(work) }
	if err := fn(reposFor(direct)); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}
