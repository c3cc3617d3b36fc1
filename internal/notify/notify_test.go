package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"parkaro/internal/domain"
)

type fakeConn struct {
	mu       sync.Mutex
	messages [][]byte
	failing  bool
	closed   bool
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("broken pipe")
	}
	c.messages = append(c.messages, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestHubBroadcastsAndDropsBrokenClients(t *testing.T) {
	logger := zerolog.New(io.Discard)
	hub := NewHub(&logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	good, bad := &fakeConn{}, &fakeConn{failing: true}
	hub.Register(good)
	hub.Register(bad)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 5*time.Millisecond)

	hub.Notify(ctx, domain.Notification{Type: domain.NotificationChargingComplete, SessionID: 7})
	require.Eventually(t, func() bool { return good.received() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, bad.isClosed())

	var got domain.Notification
	require.NoError(t, json.Unmarshal(good.messages[0], &got))
	assert.Equal(t, domain.NotificationChargingComplete, got.Type)
	assert.Equal(t, 7, got.SessionID)

	hub.Unregister(good)
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	late := &fakeConn{}
	hub.Register(late)
	assert.Eventually(t, late.isClosed, time.Second, 5*time.Millisecond)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, params *iotdataplane.PublishInput, _ ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error) {
	args := m.Called(ctx, params)
	return &iotdataplane.PublishOutput{}, args.Error(0)
}

func TestMQTTTopics(t *testing.T) {
	logger := zerolog.New(io.Discard)
	p := NewMQTTPublisher(&mockPublisher{}, "parkaro/site-1", &logger)

	cases := []struct {
		n      domain.Notification
		topic  string
		retain bool
	}{
		{domain.Notification{Type: domain.NotificationSlotAssigned, Slot: 3}, "parkaro/site-1/slots/3/assigned", false},
		{domain.Notification{Type: domain.NotificationCheckedOut, Slot: 3}, "parkaro/site-1/slots/3/released", false},
		{domain.Notification{Type: domain.NotificationChargingComplete, SessionID: 12}, "parkaro/site-1/charging/12/complete", false},
		{domain.Notification{Type: domain.NotificationOccupancy}, "parkaro/site-1/occupancy", true},
		{domain.Notification{Type: "unknown"}, "", false},
	}
	for _, tc := range cases {
		topic, retain := p.Topic(tc.n)
		assert.Equal(t, tc.topic, topic)
		assert.Equal(t, tc.retain, retain)
	}
}

func TestMQTTPublishFailureIsSwallowed(t *testing.T) {
	logger := zerolog.New(io.Discard)
	client := &mockPublisher{}
	done := make(chan struct{}, 2)
	client.On("Publish", mock.Anything, mock.MatchedBy(func(in *iotdataplane.PublishInput) bool {
		return aws.ToString(in.Topic) == "p/charging/4/complete" && in.Qos == 1
	})).Return(errors.New("throttled")).Run(func(mock.Arguments) { done <- struct{}{} }).Once()
	client.On("Publish", mock.Anything, mock.MatchedBy(func(in *iotdataplane.PublishInput) bool {
		return aws.ToString(in.Topic) == "p/slots/1/assigned"
	})).Return(nil).Run(func(mock.Arguments) { done <- struct{}{} }).Once()

	p := NewMQTTPublisher(client, "p", &logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Notify(ctx, domain.Notification{Type: domain.NotificationChargingComplete, SessionID: 4})
	p.Notify(ctx, domain.Notification{Type: domain.NotificationSlotAssigned, Slot: 1})
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("publish not attempted")
		}
	}
	client.AssertExpectations(t)
}

type recorder struct {
	mu  sync.Mutex
	got []domain.Notification
}

func (r *recorder) Notify(_ context.Context, n domain.Notification) {
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
}

func TestFanoutStampsAndDelivers(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	a, b := &recorder{}, &recorder{}
	f := NewFanout(clock, a, b)

	f.Notify(context.Background(), domain.Notification{Type: domain.NotificationCheckedOut, Slot: 2})
	require.Len(t, a.got, 1)
	require.Len(t, b.got, 1)
	assert.NotEmpty(t, a.got[0].EventID)
	assert.Equal(t, a.got[0].EventID, b.got[0].EventID)
	assert.Equal(t, clock.Now(), a.got[0].Timestamp)

	snap := domain.OccupancySnapshot{Free: []int{1, 3}, Occupied: []int{2}, Total: 3, Timestamp: clock.Now()}
	f.OccupancyChanged(snap)
	require.Len(t, a.got, 2)
	assert.Equal(t, domain.NotificationOccupancy, a.got[1].Type)
	view, ok := a.got[1].Data.(domain.ParkingStatusView)
	require.True(t, ok)
	assert.Equal(t, 2, view.FreeSpaces)
}
