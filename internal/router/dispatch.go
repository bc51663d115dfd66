package router

import (
	"context"
	"fmt"
	"sync"

	sdka2a "github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2aclient"

	"supportmesh/internal/a2a"
	"supportmesh/internal/directory"
	"supportmesh/internal/types"
)

// Dispatcher sends one task to one specialist and returns its result.
type Dispatcher interface {
	Dispatch(ctx context.Context, entry *directory.Entry, task types.Task) (types.TaskResult, error)
}

// A2ADispatcher speaks the A2A protocol to specialists, keeping one client
// per agent. A cached client is only reused while the agent's card still
// names the same endpoint; a card refresh that moves the agent rebuilds the
// client instead of sending to the old address.
type A2ADispatcher struct {
	mu      sync.Mutex
	clients map[string]cachedClient
}

type cachedClient struct {
	client  *a2aclient.Client
	cardURL string
}

func NewA2ADispatcher() *A2ADispatcher {
	return &A2ADispatcher{clients: make(map[string]cachedClient)}
}

func (d *A2ADispatcher) client(ctx context.Context, entry *directory.Entry) (*a2aclient.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cached, ok := d.clients[entry.AgentID]; ok {
		if entry.Card != nil && cached.cardURL == entry.Card.URL {
			return cached.client, nil
		}
		cached.client.Destroy()
		delete(d.clients, entry.AgentID)
	}
	c, err := a2aclient.NewFromCard(ctx, entry.Card)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", entry.AgentID, err)
	}
	d.clients[entry.AgentID] = cachedClient{client: c, cardURL: entry.Card.URL}
	return c, nil
}

func (d *A2ADispatcher) Dispatch(ctx context.Context, entry *directory.Entry, task types.Task) (types.TaskResult, error) {
	client, err := d.client(ctx, entry)
	if err != nil {
		return types.TaskResult{}, err
	}

	msg, err := a2a.EncodeTask(task)
	if err != nil {
		return types.TaskResult{}, err
	}

	result, err := client.SendMessage(ctx, &sdka2a.MessageSendParams{Message: msg})
	if err != nil {
		return types.TaskResult{}, fmt.Errorf("send to %s: %w", entry.AgentID, err)
	}
	return a2a.DecodeResult(result)
}

// Close tears down every cached client.
func (d *A2ADispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cached := range d.clients {
		cached.client.Destroy()
	}
	d.clients = make(map[string]cachedClient)
}
