package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	MsgTypeJoinRoom   = 101
	MsgTypeStartGame  = 104
	MsgTypePlayerMove = 201
	MsgTypeSyncBoard  = 202
	MsgTypeRestart    = 203
)

// send formats and sends a packet to the relay server.
func send(c *websocket.Conn, msgID uint16, data []byte) error {
	packet := make([]byte, 4+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[4:], data)

	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func main() {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: "localhost:8080", Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})
	roomID := "demo"
	if len(os.Args) > 1 {
		roomID = os.Args[1]
	}

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			if len(message) < 4 {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			msgID := binary.BigEndian.Uint16(message[0:2])
			data := message[4:]
			log.Printf("<- RECV (ID: %d): %s", msgID, string(data))
		}
	}()

	log.Printf("Joining room %q...", roomID)
	join, _ := json.Marshal(map[string]string{"room_id": roomID, "game_type": "connect4"})
	if err := send(c, MsgTypeJoinRoom, join); err != nil {
		log.Println("Write error:", err)
		return
	}

	log.Println("Commands: start | move <col> | sync <board-json> | restart")

	// Write loop
	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		default:
			text, _ := reader.ReadString('\n')
			fields := strings.Fields(text)
			if len(fields) == 0 {
				continue
			}

			var (
				msgID   uint16
				payload []byte
			)
			switch fields[0] {
			case "start":
				msgID = MsgTypeStartGame
				payload, _ = json.Marshal(map[string]string{"room_id": roomID})
			case "move":
				if len(fields) < 2 {
					log.Println("Usage: move <col>")
					continue
				}
				col, err := strconv.Atoi(fields[1])
				if err != nil {
					log.Println("Bad column:", fields[1])
					continue
				}
				msgID = MsgTypePlayerMove
				payload, _ = json.Marshal(map[string]interface{}{"room_id": roomID, "col_index": col})
			case "sync":
				if len(fields) < 2 {
					log.Println("Usage: sync <board-json>")
					continue
				}
				msgID = MsgTypeSyncBoard
				payload, _ = json.Marshal(map[string]interface{}{
					"room_id": roomID,
					"board":   json.RawMessage(fields[1]),
				})
			case "restart":
				msgID = MsgTypeRestart
				payload, _ = json.Marshal(map[string]string{"room_id": roomID})
			default:
				log.Println("Unknown command:", fields[0])
				continue
			}

			if err := send(c, msgID, payload); err != nil {
				log.Println("Write error:", err)
				return
			}
			log.Printf("-> SENT: %s", fields[0])
		}
	}
}
