package websocket

import (
	"context"
	"time"

	"purple-player/internal/metrics"
	"purple-player/pkg/logger"
)

const (
	defaultEventQueue     = 1024
	defaultOfflineTimeout = 5 * time.Second
)

// OfflineMarker is notified when a user's last connection goes away.
type OfflineMarker interface {
	MarkOffline(ctx context.Context, userID string) error
}

type eventKind int

const (
	eventRegister eventKind = iota
	eventAnnounce
	eventRelay
	eventSend
	eventDisconnect
	eventInspect
)

type event struct {
	kind    eventKind
	client  *Client
	connID  string
	userID  string
	groupID string
	payload []byte
	fn      func()
	reply   chan struct{}
}

type membership struct {
	client  *Client
	userID  string
	groupID string
}

// Router maps connections to the group they announced and fans playlist
// updates out to the other connections of that group. Every map is owned by
// the Run goroutine; callers only ever enqueue events, so per-sender order
// is the order of the queue.
type Router struct {
	events chan event
	done   chan struct{}

	conns     map[string]*membership
	groups    map[string]map[string]*Client
	userConns map[string]int

	offline        OfflineMarker
	offlineTimeout time.Duration
	metrics        *metrics.Metrics
}

type RouterOption func(*Router)

func WithMetrics(m *metrics.Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

func WithOfflineTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.offlineTimeout = d
		}
	}
}

func WithEventQueue(size int) RouterOption {
	return func(r *Router) {
		if size > 0 {
			r.events = make(chan event, size)
		}
	}
}

// NewRouter builds a router. offline may be nil, in which case disconnects
// never touch presence.
func NewRouter(offline OfflineMarker, opts ...RouterOption) *Router {
	r := &Router{
		events:         make(chan event, defaultEventQueue),
		done:           make(chan struct{}),
		conns:          make(map[string]*membership),
		groups:         make(map[string]map[string]*Client),
		userConns:      make(map[string]int),
		offline:        offline,
		offlineTimeout: defaultOfflineTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes events until ctx is cancelled, then closes every outbound
// queue.
func (r *Router) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			for id, m := range r.conns {
				close(m.client.send)
				delete(r.conns, id)
			}
			r.groups = make(map[string]map[string]*Client)
			r.userConns = make(map[string]int)
			logger.Info("Router stopped")
			return

		case ev := <-r.events:
			r.handle(ev)
		}
	}
}

// Done is closed once Run has returned.
func (r *Router) Done() <-chan struct{} {
	return r.done
}

func (r *Router) handle(ev event) {
	switch ev.kind {
	case eventRegister:
		r.conns[ev.client.id] = &membership{client: ev.client}
		r.metrics.IncConn()
		logger.Debug("Connection %s registered", ev.client.id)

	case eventAnnounce:
		r.announce(ev.connID, ev.userID, ev.groupID)

	case eventRelay:
		r.relay(ev.connID, ev.groupID, ev.payload)

	case eventSend:
		if m, ok := r.conns[ev.connID]; ok {
			if !r.deliver(m.client, ev.payload) {
				r.remove(ev.connID)
			}
		}

	case eventDisconnect:
		r.remove(ev.connID)

	case eventInspect:
		ev.fn()
		close(ev.reply)
	}
}

func (r *Router) announce(connID, userID, groupID string) {
	m, ok := r.conns[connID]
	if !ok || groupID == "" {
		return
	}
	if m.groupID == groupID && m.userID == userID {
		return
	}

	if m.groupID != "" {
		r.leaveGroup(connID, m.groupID)
	}
	if m.userID != userID {
		if m.userID != "" && r.releaseUser(m.userID) {
			r.markOffline(m.userID)
		}
		if userID != "" {
			r.userConns[userID]++
		}
	}

	m.userID = userID
	m.groupID = groupID
	set, ok := r.groups[groupID]
	if !ok {
		set = make(map[string]*Client)
		r.groups[groupID] = set
	}
	set[connID] = m.client
	r.metrics.IncAnnouncement()
	logger.Info("Connection %s (user %s) joined group %s", connID, userID, groupID)
}

func (r *Router) relay(senderID, groupID string, payload []byte) {
	set, ok := r.groups[groupID]
	if !ok {
		return
	}

	var evicted []string
	for connID, client := range set {
		if connID == senderID {
			continue
		}
		if !r.deliver(client, payload) {
			evicted = append(evicted, connID)
		}
	}
	for _, connID := range evicted {
		logger.Warn("Evicting slow connection %s from group %s", connID, groupID)
		r.metrics.IncDropped()
		r.remove(connID)
	}
	r.metrics.IncRelay()
}

func (r *Router) deliver(client *Client, payload []byte) bool {
	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

func (r *Router) remove(connID string) {
	m, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)
	close(m.client.send)
	r.metrics.DecConn()

	if m.groupID != "" {
		r.leaveGroup(connID, m.groupID)
		logger.Info("Connection %s (user %s) left group %s", connID, m.userID, m.groupID)
	}
	if m.userID != "" && r.releaseUser(m.userID) {
		r.markOffline(m.userID)
	}
}

func (r *Router) leaveGroup(connID, groupID string) {
	set, ok := r.groups[groupID]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.groups, groupID)
	}
}

// releaseUser drops one connection from the user's count and reports whether
// it was the last.
func (r *Router) releaseUser(userID string) bool {
	count := r.userConns[userID]
	if count <= 1 {
		delete(r.userConns, userID)
		return true
	}
	r.userConns[userID] = count - 1
	return false
}

func (r *Router) markOffline(userID string) {
	if r.offline == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.offlineTimeout)
		defer cancel()
		if err := r.offline.MarkOffline(ctx, userID); err != nil {
			logger.Warn("Failed to mark user %s offline: %v", userID, err)
		}
	}()
}

func (r *Router) submit(ev event) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		return false
	}
}

// Register adds a connection that has not announced a group yet.
func (r *Router) Register(client *Client) {
	r.submit(event{kind: eventRegister, client: client})
}

// Announce puts the connection in groupID's set. Re-announcing the same
// group is a no-op; a different group replaces the previous one.
func (r *Router) Announce(connID, userID, groupID string) {
	r.submit(event{kind: eventAnnounce, connID: connID, userID: userID, groupID: groupID})
}

// Relay delivers payload to every connection in groupID except connID.
func (r *Router) Relay(connID, groupID string, payload []byte) {
	r.submit(event{kind: eventRelay, connID: connID, groupID: groupID, payload: payload})
}

// Send queues payload for a single connection.
func (r *Router) Send(connID string, payload []byte) {
	r.submit(event{kind: eventSend, connID: connID, payload: payload})
}

// Disconnect removes the connection and closes its outbound queue. Unknown
// ids are ignored.
func (r *Router) Disconnect(connID string) {
	r.submit(event{kind: eventDisconnect, connID: connID})
}

// inspect runs fn on the router goroutine after every event queued before it.
func (r *Router) inspect(fn func()) {
	reply := make(chan struct{})
	if !r.submit(event{kind: eventInspect, fn: fn, reply: reply}) {
		return
	}
	select {
	case <-reply:
	case <-r.done:
	}
}

// GroupSize reports how many connections are announced to groupID.
func (r *Router) GroupSize(groupID string) int {
	var n int
	r.inspect(func() { n = len(r.groups[groupID]) })
	return n
}

// Connections reports how many connections are registered.
func (r *Router) Connections() int {
	var n int
	r.inspect(func() { n = len(r.conns) })
	return n
}

// UserConnections reports how many announced connections userID holds.
func (r *Router) UserConnections(userID string) int {
	var n int
	r.inspect(func() { n = r.userConns[userID] })
	return n
}
