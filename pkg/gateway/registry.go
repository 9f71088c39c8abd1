package gateway

import (
	"sort"
	"sync"
	"time"

	"github.com/harun/docmcp/pkg/session"
)

// idleAfter marks a client idle in listings.
const idleAfter = 5 * time.Minute

// clientSet holds the connected websocket clients. A client id is also the
// identity of that client's document session.
type clientSet struct {
	mu   sync.RWMutex
	byID map[string]*Client
}

func newClientSet() *clientSet {
	return &clientSet{byID: make(map[string]*Client)}
}

func (cs *clientSet) put(c *Client) {
	cs.mu.Lock()
	cs.byID[c.ID] = c
	cs.mu.Unlock()
}

func (cs *clientSet) drop(id string) (*Client, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	c, ok := cs.byID[id]
	delete(cs.byID, id)
	return c, ok
}

func (cs *clientSet) touch(id string, at time.Time) {
	cs.mu.RLock()
	c, ok := cs.byID[id]
	cs.mu.RUnlock()
	if ok {
		c.touch(at)
	}
}

func (cs *clientSet) len() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.byID)
}

// filter returns the clients accepted by keep, oldest connection first.
// A nil keep accepts every client.
func (cs *clientSet) filter(keep func(*Client) bool) []*Client {
	cs.mu.RLock()
	out := make([]*Client, 0, len(cs.byID))
	for _, c := range cs.byID {
		if keep == nil || keep(c) {
			out = append(out, c)
		}
	}
	cs.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// describe lists every client together with the documents its session holds.
// sessions may be nil when the server runs stateless.
func (cs *clientSet) describe(now time.Time, sessions *session.Manager) []ClientInfo {
	docs := map[string][]session.DocumentInfo{}
	if sessions != nil {
		for _, info := range sessions.Sessions() {
			docs[info.Identity] = info.Documents
		}
	}

	clients := cs.filter(nil)
	infos := make([]ClientInfo, 0, len(clients))
	for _, c := range clients {
		info := c.info(now)
		for _, d := range docs[c.ID] {
			info.Documents = append(info.Documents, d.Path)
			if d.Dirty {
				info.Unsaved++
			}
		}
		infos = append(infos, info)
	}
	return infos
}

func authenticated(c *Client) bool { return c.IsAuthenticated() }
