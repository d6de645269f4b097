// Package envelope decodes raw API responses into a document that rules can
// query by path. Missing fields never fail a lookup; they yield an empty Node.
package envelope

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// Envelope is one decoded response. It is owned by the case that issued the
// request and never shared.
type Envelope struct {
	Status      int
	ContentType string
	Header      http.Header
	Body        []byte
	Latency     time.Duration

	valid bool
	root  gjson.Result
}

// Parse builds an envelope from the raw pieces returned by the transport
func Parse(status int, header http.Header, body []byte, latency time.Duration) *Envelope {
	e := &Envelope{
		Status:      status,
		ContentType: header.Get("Content-Type"),
		Header:      header,
		Body:        body,
		Latency:     latency,
	}
	if len(body) > 0 && gjson.ValidBytes(body) {
		e.valid = true
		e.root = gjson.ParseBytes(body)
	}
	return e
}

// Valid reports whether the body is well-formed JSON
func (e *Envelope) Valid() bool {
	return e.valid
}

// MediaType returns the content type without parameters, lowercased.
func (e *Envelope) MediaType() string {
	if e.ContentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(e.ContentType)
	if err != nil {
		return ""
	}
	return mt
}

// Get looks up a gjson path such as "artObjects.#.links.web"
func (e *Envelope) Get(path string) Node {
	if !e.valid {
		return Node{}
	}
	return Node{r: e.root.Get(path)}
}

// Value decodes the body into plain maps and slices.
func (e *Envelope) Value() (interface{}, error) {
	if !e.valid {
		return nil, fmt.Errorf("body is not valid JSON")
	}
	var v interface{}
	if err := json.Unmarshal(e.Body, &v); err != nil {
		return nil, fmt.Errorf("failed to decode body: %w", err)
	}
	return v, nil
}

// Node is one value inside a document
type Node struct {
	r gjson.Result
}

// Exists reports whether the path matched anything, including a JSON null.
func (n Node) Exists() bool {
	return n.r.Exists()
}

// IsNull reports a present JSON null.
func (n Node) IsNull() bool {
	return n.r.Exists() && n.r.Type == gjson.Null
}

// Present reports a field that exists and is not null.
func (n Node) Present() bool {
	return n.r.Exists() && n.r.Type != gjson.Null
}

func (n Node) String() string {
	return n.r.String()
}

func (n Node) Int() int64 {
	return n.r.Int()
}

func (n Node) Float() float64 {
	return n.r.Float()
}

// IsNumber reports whether the node holds a JSON number
func (n Node) IsNumber() bool {
	return n.r.Type == gjson.Number
}

func (n Node) IsArray() bool {
	return n.r.IsArray()
}

// Array returns the elements of an array node; anything else yields nil.
func (n Node) Array() []Node {
	if !n.r.IsArray() {
		return nil
	}
	items := n.r.Array()
	nodes := make([]Node, len(items))
	for i, item := range items {
		nodes[i] = Node{r: item}
	}
	return nodes
}

// Get looks up a path relative to this node
func (n Node) Get(path string) Node {
	if !n.r.Exists() {
		return Node{}
	}
	return Node{r: n.r.Get(path)}
}

// Raw returns the JSON text of the node
func (n Node) Raw() string {
	return n.r.Raw
}
