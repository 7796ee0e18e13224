package interceptor

import (
	"sort"
	"sync"
	"time"
)

// Client is an open page within the worker's scope.
type Client struct {
	ID string `json:"id"`
	// Controller is the version of the worker controlling the client, or
	// empty when uncontrolled.
	Controller string    `json:"controller,omitempty"`
	SeenAt     time.Time `json:"seen_at"`
}

// Clients tracks open pages and which worker controls each.
//
// Contract:
// - Concurrency: safe for concurrent use.
type Clients struct {
	mu    sync.Mutex
	m     map[string]*Client
	limit int
	now   func() time.Time
}

// NewClients creates an empty, unbounded client set.
func NewClients() *Clients {
	return NewBoundedClients(0)
}

// NewBoundedClients creates an empty client set holding at most limit
// clients. Adding a client to a full set evicts the least recently seen one.
// A limit of zero or less means unbounded.
func NewBoundedClients(limit int) *Clients {
	return &Clients{m: make(map[string]*Client), limit: limit, now: time.Now}
}

// Add records a client, or refreshes one already known. A new client is
// controlled by controller, which may be empty. An existing client keeps its
// controller.
func (c *Clients) Add(id, controller string) Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	if cl, ok := c.m[id]; ok {
		cl.SeenAt = now
		return *cl
	}
	if c.limit > 0 && len(c.m) >= c.limit {
		c.evictOldest()
	}
	cl := &Client{ID: id, Controller: controller, SeenAt: now}
	c.m[id] = cl
	return *cl
}

// evictOldest drops the least recently seen client. Must hold c.mu.
func (c *Clients) evictOldest() {
	var oldest *Client
	for _, cl := range c.m {
		if oldest == nil || cl.SeenAt.Before(oldest.SeenAt) ||
			(cl.SeenAt.Equal(oldest.SeenAt) && cl.ID < oldest.ID) {
			oldest = cl
		}
	}
	if oldest != nil {
		delete(c.m, oldest.ID)
	}
}

// Expire forgets every client last seen before cutoff and returns them.
func (c *Clients) Expire(cutoff time.Time) []Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Client
	for id, cl := range c.m {
		if cl.SeenAt.Before(cutoff) {
			out = append(out, *cl)
			delete(c.m, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Remove forgets a client. It reports whether the client was known.
func (c *Clients) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.m[id]
	delete(c.m, id)
	return ok
}

// Controller returns the version controlling id.
func (c *Clients) Controller(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.m[id]
	if !ok {
		return "", false
	}
	return cl.Controller, true
}

// ClaimAll makes version the controller of every known client and returns
// how many changed hands.
func (c *Clients) ClaimAll(version string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cl := range c.m {
		if cl.Controller != version {
			cl.Controller = version
			n++
		}
	}
	return n
}

// ControlledBy counts clients controlled by version.
func (c *Clients) ControlledBy(version string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cl := range c.m {
		if cl.Controller == version {
			n++
		}
	}
	return n
}

// Len returns the number of known clients.
func (c *Clients) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

// List returns a snapshot of all clients sorted by ID.
func (c *Clients) List() []Client {
	c.mu.Lock()
	out := make([]Client, 0, len(c.m))
	for _, cl := range c.m {
		out = append(out, *cl)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
