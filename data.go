package rechannel

import (
	json "github.com/goccy/go-json"
)

// Data is a decoded JSON object
type Data map[string]interface{}

func (d Data) Set(k string, v interface{}) {
	d[k] = v
}

func (d Data) String(k string) string {
	s, _ := d[k].(string)
	return s
}

func (d Data) Bool(k string) bool {
	b, _ := d[k].(bool)
	return b
}

// Float returns numeric values as float64, which is how JSON numbers decode.
func (d Data) Float(k string) float64 {
	switch v := d[k].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func (d Data) Json() string {
	b, err := json.Marshal(d)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func decode(b []byte) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
