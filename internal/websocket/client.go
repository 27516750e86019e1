package websocket

import (
	"context"
	"encoding/json"
	"time"

	"purple-player/internal/models"
	"purple-player/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 64 * 1024
	verifyTimeout     = 5 * time.Second
	DefaultSendBuffer = 256
)

// MembershipVerifier checks that a user really belongs to the group they
// announce. Clients built without one trust the announcement.
type MembershipVerifier interface {
	IsMember(ctx context.Context, userID, groupID string) (bool, error)
}

type Client struct {
	id       string
	router   *Router
	conn     *websocket.Conn
	send     chan []byte
	verifier MembershipVerifier
	now      func() time.Time
}

func NewClient(router *Router, conn *websocket.Conn, sendBuffer int, verifier MembershipVerifier) *Client {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Client{
		id:       uuid.NewString(),
		router:   router,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		verifier: verifier,
		now:      time.Now,
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) ReadPump() {
	defer func() {
		c.router.Disconnect(c.id)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error on %s: %v", c.id, err)
			}
			break
		}
		c.dispatch(message)
	}
}

func (c *Client) dispatch(message []byte) {
	var frame models.Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		c.sendError("malformed frame")
		return
	}

	switch frame.Event {
	case models.EventJoinGroup:
		var p models.JoinGroupPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil || p.GroupID == "" {
			c.sendError("join-group requires groupId")
			return
		}
		c.joinGroup(p)

	case models.EventTrackAdded:
		var p models.TrackAddedPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			c.sendError("malformed track:added payload")
			return
		}
		c.relay(p.GroupID, models.PlaylistUpdate{
			Event:     models.PlaylistTrackAdded,
			Track:     p.Track,
			AddedBy:   p.UserID,
			Timestamp: c.now().UTC(),
		})

	case models.EventTrackRemoved:
		var p models.TrackRemovedPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			c.sendError("malformed track:removed payload")
			return
		}
		c.relay(p.GroupID, models.PlaylistUpdate{
			Event:     models.PlaylistTrackRemoved,
			TrackID:   p.TrackID,
			RemovedBy: p.UserID,
			Timestamp: c.now().UTC(),
		})

	default:
		c.sendError("unknown event " + string(frame.Event))
	}
}

func (c *Client) joinGroup(p models.JoinGroupPayload) {
	if c.verifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
		ok, err := c.verifier.IsMember(ctx, p.UserID, p.GroupID)
		cancel()
		if err != nil {
			logger.Error("Error verifying membership of %s in %s: %v", p.UserID, p.GroupID, err)
			c.sendError("could not verify group membership")
			return
		}
		if !ok {
			logger.Warn("Rejected join of user %s to group %s on %s", p.UserID, p.GroupID, c.id)
			c.sendError("not a member of this group")
			return
		}
	}
	c.router.Announce(c.id, p.UserID, p.GroupID)
}

func (c *Client) relay(groupID string, update models.PlaylistUpdate) {
	if groupID == "" {
		return
	}
	frame, err := models.NewFrame(models.EventPlaylistUpdate, update)
	if err != nil {
		logger.Error("Error marshaling playlist update: %v", err)
		return
	}
	c.router.Relay(c.id, groupID, frame)
}

func (c *Client) sendError(message string) {
	frame, err := models.NewFrame(models.EventError, models.ErrorPayload{Message: message})
	if err != nil {
		logger.Error("Error marshaling error frame: %v", err)
		return
	}
	c.router.Send(c.id, frame)
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error on %s: %v", c.id, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
