package handlers

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/taskflow-app/taskflow/services"
)

// HandleWebSocket upgrades the HTTP connection and subscribes the
// session to the authenticated user's change events. No historical
// events are replayed; callers must perform a full load first.
func (h *DataHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "user not found", "", "")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins in development
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading to WebSocket: %v", err)
		return
	}

	// Multiple sessions per user are allowed; each tab or device gets
	// its own client and receives every event for the user.
	client := &services.Client{
		Hub:    h.hub,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		UserID: userID,
	}

	h.hub.Register(client)
	log.Printf("WebSocket client registered: %s", userID)

	go client.WritePump()
	go client.ReadPump()
}
