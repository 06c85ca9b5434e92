package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coder/websocket"
)

// ErrStopWatching may be returned by a Watch callback to end the watch
// without an error.
var ErrStopWatching = errors.New("stop watching")

// Watch connects to the dashboard at addr (host:port) and calls fn for every
// message, starting with the snapshot. It returns when ctx is done, the
// server closes the connection, or fn returns an error.
func Watch(ctx context.Context, addr string, fn func(Message) error) error {
	conn, _, err := websocket.Dial(ctx, "ws://"+addr+"/ws", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to dashboard at %s: %w", addr, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusGoingAway ||
				websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("failed to read dashboard message: %w", err)
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("failed to decode dashboard message: %w", err)
		}

		if err := fn(msg); err != nil {
			if errors.Is(err, ErrStopWatching) {
				return nil
			}
			return err
		}
	}
}

// Snapshot connects to the dashboard at addr and returns the session
// snapshot it sends on connect.
func Snapshot(ctx context.Context, addr string) (*SnapshotData, error) {
	var snap *SnapshotData

	err := Watch(ctx, addr, func(msg Message) error {
		if msg.Type != MessageTypeSnapshot {
			return nil
		}
		var data SnapshotData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return fmt.Errorf("failed to decode snapshot: %w", err)
		}
		snap = &data
		return ErrStopWatching
	})
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("dashboard at %s closed before sending a snapshot", addr)
	}
	return snap, nil
}
