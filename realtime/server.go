package realtime

import (
	"log"

	socketio "github.com/googollee/go-socket.io"
)

// NewSocketServer initializes the Socket.IO server and bridges it to
// the propagation channel: every event published on a user topic is
// broadcast into that user's room.
func NewSocketServer(channel *Channel) *socketio.Server {
	server := socketio.NewServer(nil)

	server.OnConnect("/", func(c socketio.Conn) error {
		log.Println("✅ Socket connected:", c.ID())
		return nil
	})

	// A client joins its own user room to start receiving live state
	// changes. The current backlog is replayed to the joining
	// connection only; duplicates are resolved client-side by dedup
	// key.
	server.OnEvent("/", "join", func(c socketio.Conn, userID string) {
		if userID == "" {
			log.Println("❌ Invalid userId in join request")
			return
		}
		c.Join(RoomForUser(userID))
		log.Printf("👥 Socket %s joined topic for user %s", c.ID(), userID)

		for _, ev := range channel.RecentEvents(userID) {
			c.Emit("state_change", ev)
		}
	})

	server.OnEvent("/", "leave", func(c socketio.Conn, userID string) {
		if userID == "" {
			return
		}
		c.Leave(RoomForUser(userID))
		log.Printf("👋 Socket %s left topic for user %s", c.ID(), userID)
	})

	server.OnError("/", func(c socketio.Conn, err error) {
		log.Printf("❌ Socket error: %v", err)
	})

	server.OnDisconnect("/", func(c socketio.Conn, reason string) {
		log.Println("❌ Socket disconnected:", reason)
	})

	channel.SetBroadcaster(server)
	return server
}
