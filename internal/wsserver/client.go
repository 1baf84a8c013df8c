package wsserver

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Mithilesh5957/nidar/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

// outbound is the envelope written to the dashboard.
type outbound struct {
	Type      string                  `json:"type"`
	Event     *model.Event            `json:"event,omitempty"`
	Samples   []model.TelemetrySample `json:"samples,omitempty"`
	Items     []model.MissionItem     `json:"items,omitempty"`
	MissionID uint                    `json:"missionId,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// command is a request from the dashboard.
type command struct {
	Action      string              `json:"cmd"`
	Items       []model.MissionItem `json:"items,omitempty"`
	DetectionID uint                `json:"detectionId,omitempty"`
	Vehicle     string              `json:"vehicle,omitempty"`
}

// client is one dashboard connection. All writes happen on the single
// writer goroutine; the reader goroutine handles commands.
type client struct {
	server    *Server
	conn      *websocket.Conn
	vehicleID string

	replies chan outbound

	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(s *Server, conn *websocket.Conn, vehicleID string) *client {
	return &client{
		server:    s,
		conn:      conn,
		vehicleID: vehicleID,
		replies:   make(chan outbound, 16),
		closed:    make(chan struct{}),
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

// run services the connection until either side goes away.
func (c *client) run() {
	sub := c.server.hub.Subscribe(c.vehicleID)
	defer c.server.hub.Unsubscribe(sub)
	defer c.close()

	go c.writeLoop(sub.Events())
	c.readLoop()
}

func (c *client) writeLoop(events <-chan model.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.close()

	// New clients get the cached history before any live traffic.
	history := c.server.hub.RecentSamples(c.vehicleID, 0)
	if err := c.write(outbound{Type: "history", Samples: history}); err != nil {
		return
	}

	for {
		select {
		case e, ok := <-events:
			if !ok {
				// Pruned by the hub or the hub shut down.
				return
			}
			if err := c.write(outbound{Type: "event", Event: &e}); err != nil {
				return
			}
		case reply := <-c.replies:
			if err := c.write(reply); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *client) write(msg outbound) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *client) readLoop() {
	c.conn.SetReadLimit(1 << 20)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var cmd command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		// Mission transfers block for seconds; keep the reader responsive.
		go c.handle(cmd)
	}
}

func (c *client) handle(cmd command) {
	switch cmd.Action {
	case "fetch_mission":
		items, err := c.server.missions.RequestMission(c.vehicleID)
		if err != nil {
			c.reply(outbound{Type: "error", Error: err.Error()})
			return
		}
		c.reply(outbound{Type: "mission_plan", Items: items})

	case "upload_mission":
		missionID, err := c.server.missions.UploadMission(c.vehicleID, cmd.Items)
		if err != nil {
			c.reply(outbound{Type: "error", Error: err.Error()})
			return
		}
		c.reply(outbound{Type: "mission_uploaded", MissionID: missionID})

	case "approve":
		target := cmd.Vehicle
		if target == "" {
			target = c.vehicleID
		}
		missionID, err := c.server.missions.ApproveAndDeliver(cmd.DetectionID, target)
		if err != nil {
			c.reply(outbound{Type: "error", Error: err.Error()})
			return
		}
		c.reply(outbound{Type: "delivery_approved", MissionID: missionID})

	default:
		c.reply(outbound{Type: "error", Error: fmt.Sprintf("unknown action %q", cmd.Action)})
	}
}

func (c *client) reply(msg outbound) {
	select {
	case c.replies <- msg:
	case <-c.closed:
	}
}
