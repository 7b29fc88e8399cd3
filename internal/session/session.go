package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/n0madic/claude-chatmock/internal/types"
)

// DefaultCapacity bounds the fingerprint table.
const DefaultCapacity = 10000

// Cache maps conversation fingerprints to stable session ids. The same
// instructions and first user message always yield the same id, so every
// turn of a conversation shares one upstream prompt cache key.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ids      map[string]string
	order    []string
}

// NewCache returns a cache holding at most capacity fingerprints.
// A non-positive capacity selects DefaultCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		ids:      make(map[string]string),
	}
}

// Key returns clientSupplied when it is non-empty, otherwise the session id
// for the conversation prefix.
func (c *Cache) Key(instructions string, items []types.ResponsesInputItem, clientSupplied string) string {
	if clientSupplied != "" {
		return clientSupplied
	}
	fp := fingerprint(instructions, items)

	c.mu.Lock()
	defer c.mu.Unlock()

	if sid, ok := c.ids[fp]; ok {
		return sid
	}
	sid := uuid.NewString()
	c.ids[fp] = sid
	c.order = append(c.order, fp)
	if len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.ids, oldest)
	}
	return sid
}

// Len reports the number of cached fingerprints.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

type prefix struct {
	Instructions string            `json:"instructions,omitempty"`
	FirstUser    *firstUserMessage `json:"first_user_message,omitempty"`
}

type firstUserMessage struct {
	Type    string                   `json:"type"`
	Role    string                   `json:"role"`
	Content []types.ResponsesContent `json:"content"`
}

// fingerprint hashes the session-invariant part of a request. Later turns
// are excluded so the key survives conversation growth.
func fingerprint(instructions string, items []types.ResponsesInputItem) string {
	p := prefix{Instructions: instructions, FirstUser: firstUser(items)}
	data, _ := json.Marshal(p)
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func firstUser(items []types.ResponsesInputItem) *firstUserMessage {
	for _, item := range items {
		if item.Type != "message" || item.Role != types.RoleUser {
			continue
		}
		var content []types.ResponsesContent
		for _, part := range item.Content {
			switch {
			case part.Type == "input_text" && part.Text != "":
				content = append(content, types.ResponsesContent{Type: part.Type, Text: part.Text})
			case part.Type == "input_image" && part.ImageURL != "":
				content = append(content, types.ResponsesContent{Type: part.Type, ImageURL: part.ImageURL})
			}
		}
		if len(content) > 0 {
			return &firstUserMessage{Type: "message", Role: types.RoleUser, Content: content}
		}
	}
	return nil
}
