package drive

import (
	"context"
	"fmt"
	"sync"
)

// Node is a folder or file held by InMemoryClient.
type Node struct {
	ID       string
	ParentID string
	Name     string
	Folder   bool
	Data     []byte
	Public   bool
}

// InMemoryClient is a Client for tests. FailNext makes the next n calls fail
// with Err; Err alone makes every call fail.
type InMemoryClient struct {
	mu       sync.Mutex
	nodes    map[string]*Node
	seq      int
	calls    int
	failNext int
	Err      error
}

func NewInMemoryClient() *InMemoryClient {
	return &InMemoryClient{nodes: make(map[string]*Node)}
}

// FailNext arms the client to fail the next n calls with err.
func (c *InMemoryClient) FailNext(n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = n
	c.Err = err
}

func (c *InMemoryClient) fail() error {
	c.calls++
	if c.Err == nil {
		return nil
	}
	if c.failNext > 0 {
		c.failNext--
		err := c.Err
		if c.failNext == 0 {
			c.Err = nil
		}
		return err
	}
	return c.Err
}

func (c *InMemoryClient) nextID(prefix string) string {
	c.seq++
	return fmt.Sprintf("%s-%d", prefix, c.seq)
}

func (c *InMemoryClient) FindFolder(_ context.Context, parentID, name string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail(); err != nil {
		return "", false, err
	}
	for _, n := range c.nodes {
		if n.Folder && n.ParentID == parentID && n.Name == name {
			return n.ID, true, nil
		}
	}
	return "", false, nil
}

func (c *InMemoryClient) CreateFolder(_ context.Context, parentID, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail(); err != nil {
		return "", err
	}
	id := c.nextID("folder")
	c.nodes[id] = &Node{ID: id, ParentID: parentID, Name: name, Folder: true}
	return id, nil
}

func (c *InMemoryClient) Upload(_ context.Context, parentID, name, _ string, data []byte) (File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail(); err != nil {
		return File{}, err
	}
	id := c.nextID("file")
	c.nodes[id] = &Node{ID: id, ParentID: parentID, Name: name, Data: append([]byte(nil), data...)}
	return File{ID: id, WebLink: "https://docs.local/file/" + id}, nil
}

func (c *InMemoryClient) GrantPublicRead(_ context.Context, fileID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail(); err != nil {
		return err
	}
	n, ok := c.nodes[fileID]
	if !ok {
		return fmt.Errorf("file %s not found", fileID)
	}
	n.Public = true
	return nil
}

// Folders returns every folder named name.
func (c *InMemoryClient) Folders(name string) []Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Node
	for _, n := range c.nodes {
		if n.Folder && n.Name == name {
			out = append(out, *n)
		}
	}
	return out
}

// File returns a stored file by id.
func (c *InMemoryClient) File(id string) (Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[id]
	if !ok || n.Folder {
		return Node{}, false
	}
	return *n, true
}

// Calls counts every call made, failed ones included.
func (c *InMemoryClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// MemoryFolderCache is a FolderCache backed by a map.
type MemoryFolderCache struct {
	mu  sync.Mutex
	ids map[string]string
}

func NewMemoryFolderCache() *MemoryFolderCache {
	return &MemoryFolderCache{ids: make(map[string]string)}
}

func (c *MemoryFolderCache) Get(_ context.Context, parentID, name string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.ids[folderKey(parentID, name)]
	return id, ok, nil
}

func (c *MemoryFolderCache) Set(_ context.Context, parentID, name, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[folderKey(parentID, name)] = id
	return nil
}
