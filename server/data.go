package server

import (
	json "github.com/goccy/go-json"
)

// Data is one JSON object exchanged with a websocket client
type Data map[string]interface{}

// WsForceClose returned from a WsHandler closes the session
var WsForceClose = Data{"close": true}

func (d Data) Set(k string, v interface{}) {
	d[k] = v
}

func (d Data) Bool(k string) bool {
	b, _ := d[k].(bool)
	return b
}

func (d Data) String(k string) string {
	s, _ := d[k].(string)
	return s
}

func (d Data) Json() string {
	b, err := json.Marshal(d)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// toData converts any JSON-encodable value into Data
func toData(v interface{}) (Data, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	return d, nil
}

type WSArgs struct {
	ID        string
	EventType string
	Body      Data
	Sender    func(Data) error
	Broadcast func(Data)
}

// WsHandler receives ws_open, ws_message and ws_close events. A non-nil
// return is sent back to the client.
type WsHandler func(args *WSArgs) Data
