package handlers

import (
	"log"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
)

var server *socketio.Server

// InitializeSocketIO initializes the Socket.IO server. Clients and the
// workspace sync consumer join one room per team; membership events are
// broadcast into that room.
func InitializeSocketIO() *socketio.Server {
	server = socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			polling.Default,
			websocket.Default,
		},
	})

	server.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext("")
		log.Println("Socket.IO client connected:", s.ID())
		return nil
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("Socket.IO error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Println("Socket.IO client disconnected:", s.ID(), "reason:", reason)
	})

	server.OnEvent("/", "join_team", func(s socketio.Conn, msg map[string]interface{}) {
		teamID, ok := msg["teamId"].(string)
		if ok {
			s.Join(teamID)
			log.Println("Client joined team room:", teamID)
		}
	})

	server.OnEvent("/", "leave_team", func(s socketio.Conn, msg map[string]interface{}) {
		teamID, ok := msg["teamId"].(string)
		if ok {
			s.Leave(teamID)
			log.Println("Client left team room:", teamID)
		}
	})

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("Socket.IO server error: %v", err)
		}
	}()

	return server
}

// GetSocketIOServer returns the Socket.IO server instance
func GetSocketIOServer() *socketio.Server {
	return server
}
