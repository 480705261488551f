package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// ErrJoinRejected is returned by Dial when the hub refuses the join.
var ErrJoinRejected = errors.New("join rejected")

// Subscription is a joined client connection.
type Subscription struct {
	conn   *websocket.Conn
	UserID string
}

// Dial connects to a hub at url (ws:// or wss://) and joins userID's room.
func Dial(ctx context.Context, url, userID string) (*Subscription, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}
	if err := conn.WriteJSON(joinRequest{Type: "join", UserID: userID}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending join: %w", err)
	}

	var ack Event
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading join reply: %w", err)
	}
	if ack.Type != EventJoined {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrJoinRejected, ack.Message)
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})
	return &Subscription{conn: conn, UserID: userID}, nil
}

// Next blocks for the next event.
func (s *Subscription) Next() (Event, error) {
	var ev Event
	if err := s.conn.ReadJSON(&ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Close closes the connection.
func (s *Subscription) Close() error {
	return s.conn.Close()
}
