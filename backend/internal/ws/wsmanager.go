package ws

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"syncServer/backend/internal/auth"
	"syncServer/backend/internal/cache"
	"syncServer/backend/internal/engine"
	"syncServer/backend/internal/presence"
)

// Upgrader shared by all connections; origins are restricted to local
// development hosts until a deployment origin list exists.
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

type ManagerOptions struct {
	// HeartbeatWindow bounds how long a connection may stay silent before it
	// is treated as disconnected.
	HeartbeatWindow time.Duration
	// LivenessTTL is the logical TTL written to the shared liveness cache on
	// every heartbeat.
	LivenessTTL time.Duration
}

// Manager owns the upgrade path: it turns an authenticated HTTP request into
// a Conn and runs its loops.
type Manager struct {
	hub      *Hub
	engine   engine.Engine
	tracker  *presence.Tracker
	liveness cache.LivenessCache
	sem      *engine.Semaphore
	opt      ManagerOptions
}

func NewManager(hub *Hub, eng engine.Engine, tracker *presence.Tracker,
	liveness cache.LivenessCache, sem *engine.Semaphore, opt ManagerOptions) *Manager {
	if opt.HeartbeatWindow <= 0 {
		opt.HeartbeatWindow = 90 * time.Second
	}
	if opt.LivenessTTL <= 0 {
		opt.LivenessTTL = 10 * time.Minute
	}
	return &Manager{hub: hub, engine: eng, tracker: tracker, liveness: liveness, sem: sem, opt: opt}
}

// WebSocketConnect upgrades the request and runs the session until the
// socket dies. Identity was already verified and stored in the gin context
// by the auth middleware; there is no re-authentication after this point.
func (m *Manager) WebSocketConnect(c *gin.Context) {
	id := auth.Identity{
		UserID:      c.GetUint64("userId"),
		DisplayName: c.GetString("displayName"),
		Role:        c.GetString("role"),
	}
	if id.UserID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "identity missing"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	wsConn := NewConn(conn, m.hub, id, m.engine, m.tracker, m.liveness, m.sem,
		m.opt.HeartbeatWindow, m.opt.LivenessTTL)
	m.hub.Register(wsConn)

	// Start the write loop first so the welcome (and anything broadcast to
	// us) drains promptly, then block in the read loop.
	go wsConn.writeLoop()
	wsConn.Enqueue(FeedbackMessage{Type: "feedback", Message: "connected as " + id.DisplayName})
	wsConn.readLoop(c.Request.Context())
}
