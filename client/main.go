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
	MsgTypeLogin        = 2
	MsgTypeCreateMatch  = 101
	MsgTypeJoinMatch    = 102
	MsgTypePlayerAction = 201
	MsgTypeMatchState   = 301
)

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, data []byte) error {
	packet := make([]byte, 4+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[4:], data)

	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func sendJSON(c *websocket.Conn, msgID uint16, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return send(c, msgID, data)
}

func main() {
	address := "0xDEMO0000000000000000000000000000000000A1"
	if len(os.Args) > 1 {
		address = os.Args[1]
	}

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

	log.Printf("Logging in as %s", address)
	if err := sendJSON(c, MsgTypeLogin, map[string]string{"address": address}); err != nil {
		log.Println("Write error:", err)
		return
	}

	log.Println("Commands: 'create', 'join <match_id>', 'state <match_id>',")
	log.Println("          'play <match_id> <type> <element> <value>', 'draw <match_id>'")

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
			fields := strings.Fields(strings.TrimSpace(text))
			if len(fields) == 0 {
				continue
			}

			var err error
			switch fields[0] {
			case "create":
				req := map[string]interface{}{
					"players": []string{
						address,
						"0xDEMO0000000000000000000000000000000000A2",
						"0xDEMO0000000000000000000000000000000000A3",
						"0xDEMO0000000000000000000000000000000000A4",
					},
					"stake": 100,
					"settings": map[string]interface{}{
						"cards_per_player":  7,
						"turn_time_seconds": 30,
						"pause_enabled":     true,
						"penalty_cards":     2,
					},
				}
				err = sendJSON(c, MsgTypeCreateMatch, req)
			case "join":
				if len(fields) < 2 {
					log.Println("Usage: join <match_id>")
					continue
				}
				err = sendJSON(c, MsgTypeJoinMatch, map[string]string{"match_id": fields[1]})
			case "state":
				if len(fields) < 2 {
					log.Println("Usage: state <match_id>")
					continue
				}
				err = sendJSON(c, MsgTypeMatchState, map[string]string{"match_id": fields[1]})
			case "play":
				if len(fields) < 5 {
					log.Println("Usage: play <match_id> <type> <element> <value> (numeric)")
					continue
				}
				cardType, _ := strconv.Atoi(fields[2])
				element, _ := strconv.Atoi(fields[3])
				value, _ := strconv.Atoi(fields[4])
				req := map[string]interface{}{
					"match_id": fields[1],
					"action": map[string]interface{}{
						"type": "DISCARD",
						"card": map[string]int{
							"type":    cardType,
							"element": element,
							"value":   value,
						},
					},
				}
				err = sendJSON(c, MsgTypePlayerAction, req)
			case "draw":
				if len(fields) < 2 {
					log.Println("Usage: draw <match_id>")
					continue
				}
				req := map[string]interface{}{
					"match_id": fields[1],
					"action":   map[string]string{"type": "DRAW"},
				}
				err = sendJSON(c, MsgTypePlayerAction, req)
			default:
				log.Printf("Unknown command: %s", fields[0])
				continue
			}
			if err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}
}
