package channel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/signage-player/webplayer/internal/model"
)

// Engine.IO v4 packet types.
const (
	engineOpen    byte = '0'
	engineClose   byte = '1'
	enginePing    byte = '2'
	enginePong    byte = '3'
	engineMessage byte = '4'
	engineUpgrade byte = '5'
	engineNoop    byte = '6'
)

// Socket.IO v5 packet types, carried inside engine message packets.
const (
	socketConnect      byte = '0'
	socketDisconnect   byte = '1'
	socketEvent        byte = '2'
	socketAck          byte = '3'
	socketConnectError byte = '4'
)

const (
	EventRegister      = "message"
	EventScreenUpdated = "screenUpdated"
)

// ErrHandshake reports a server that did not complete the connect sequence.
var ErrHandshake = errors.New("socket.io handshake failed")

// ProtocolError describes a frame that could not be decoded.
type ProtocolError struct {
	Frame  string
	Reason string
}

func (e *ProtocolError) Error() string {
	if e == nil {
		return "protocol error"
	}
	frame := e.Frame
	if len(frame) > 64 {
		frame = frame[:64] + "..."
	}
	return fmt.Sprintf("socket.io protocol error: %s (frame %q)", e.Reason, frame)
}

// Handshake is the Engine.IO open packet payload.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// Packet is one decoded websocket frame.
type Packet struct {
	Engine    byte
	Socket    byte
	Namespace string
	AckID     int
	HasAck    bool
	Data      json.RawMessage
}

// DecodePacket parses an Engine.IO frame and, for message frames, the
// Socket.IO packet inside it.
func DecodePacket(frame []byte) (Packet, error) {
	if len(frame) == 0 {
		return Packet{}, &ProtocolError{Reason: "empty frame"}
	}
	pkt := Packet{Engine: frame[0], Namespace: "/"}
	rest := frame[1:]
	switch pkt.Engine {
	case engineOpen, engineClose, enginePing, enginePong, engineUpgrade, engineNoop:
		pkt.Data = append(json.RawMessage(nil), rest...)
		return pkt, nil
	case engineMessage:
	default:
		return Packet{}, &ProtocolError{Frame: string(frame), Reason: "unknown engine packet type"}
	}

	if len(rest) == 0 {
		return Packet{}, &ProtocolError{Frame: string(frame), Reason: "missing socket packet type"}
	}
	pkt.Socket = rest[0]
	if pkt.Socket < socketConnect || pkt.Socket > '6' {
		return Packet{}, &ProtocolError{Frame: string(frame), Reason: "unknown socket packet type"}
	}
	rest = rest[1:]

	if len(rest) > 0 && rest[0] == '/' {
		comma := bytes.IndexByte(rest, ',')
		if comma < 0 {
			pkt.Namespace = string(rest)
			rest = nil
		} else {
			pkt.Namespace = string(rest[:comma])
			rest = rest[comma+1:]
		}
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(string(rest[:digits]))
		if err != nil {
			return Packet{}, &ProtocolError{Frame: string(frame), Reason: "invalid ack id"}
		}
		pkt.AckID = id
		pkt.HasAck = true
		rest = rest[digits:]
	}
	if len(rest) > 0 {
		if !json.Valid(rest) {
			return Packet{}, &ProtocolError{Frame: string(frame), Reason: "invalid json payload"}
		}
		pkt.Data = append(json.RawMessage(nil), rest...)
	}
	return pkt, nil
}

// DecodeHandshake reads the payload of an Engine.IO open packet.
func DecodeHandshake(pkt Packet) (Handshake, error) {
	if pkt.Engine != engineOpen {
		return Handshake{}, fmt.Errorf("%w: expected open packet, got %q", ErrHandshake, pkt.Engine)
	}
	var hs Handshake
	if err := json.Unmarshal(pkt.Data, &hs); err != nil {
		return Handshake{}, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return hs, nil
}

// EncodeConnect builds the Socket.IO connect packet for the default namespace.
func EncodeConnect() []byte {
	return []byte{engineMessage, socketConnect}
}

func EncodePong() []byte {
	return []byte{enginePong}
}

// EncodeEvent builds an event packet; ackID < 0 requests no acknowledgement.
func EncodeEvent(ackID int, name string, args ...any) ([]byte, error) {
	payload := make([]any, 0, len(args)+1)
	payload = append(payload, name)
	payload = append(payload, args...)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteByte(engineMessage)
	buf.WriteByte(socketEvent)
	if ackID >= 0 {
		buf.WriteString(strconv.Itoa(ackID))
	}
	buf.Write(body)
	return buf.Bytes(), nil
}

type Kind int

const (
	KindUnknown Kind = iota
	KindScreenUpdated
	KindAck
)

// Event is a decoded server push, tagged by kind.
type Event struct {
	Kind       Kind
	Name       string
	AckID      int
	Assignment model.Assignment
	Raw        json.RawMessage
}

// DecodeEvent turns an event or ack packet into a typed Event. A
// screenUpdated payload must be a JSON string (or object) holding an
// assignment; anything else is an error.
func DecodeEvent(pkt Packet) (Event, error) {
	if pkt.Engine != engineMessage {
		return Event{}, &ProtocolError{Reason: "not a message packet"}
	}
	var args []json.RawMessage
	if len(pkt.Data) > 0 {
		if err := json.Unmarshal(pkt.Data, &args); err != nil {
			return Event{}, &ProtocolError{Frame: string(pkt.Data), Reason: "payload is not an array"}
		}
	}

	switch pkt.Socket {
	case socketAck:
		ev := Event{Kind: KindAck, AckID: pkt.AckID}
		if len(args) > 0 {
			ev.Raw = args[0]
		}
		return ev, nil
	case socketEvent:
	default:
		return Event{}, &ProtocolError{Frame: string(pkt.Data), Reason: "not an event packet"}
	}

	if len(args) == 0 {
		return Event{}, &ProtocolError{Frame: string(pkt.Data), Reason: "event without name"}
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return Event{}, &ProtocolError{Frame: string(pkt.Data), Reason: "event name is not a string"}
	}
	ev := Event{Kind: KindUnknown, Name: name}
	if len(args) > 1 {
		ev.Raw = args[1]
	}
	if name != EventScreenUpdated {
		return ev, nil
	}
	if len(args) < 2 {
		return Event{}, fmt.Errorf("%w: screenUpdated without payload", model.ErrInvalidAssignment)
	}

	body := []byte(args[1])
	var encoded string
	if err := json.Unmarshal(args[1], &encoded); err == nil {
		body = []byte(encoded)
	}
	assignment, err := model.DecodeAssignment(body)
	if err != nil {
		return Event{}, err
	}
	ev.Kind = KindScreenUpdated
	ev.Assignment = assignment
	return ev, nil
}
