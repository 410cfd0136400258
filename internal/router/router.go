// Package router connects chat platforms to a single message handler.
package router

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Message is an inbound chat message, normalized across platforms.
type Message struct {
	ID        string
	Platform  string
	ChannelID string
	UserID    string
	Username  string
	Text      string
	ThreadID  string
	Metadata  map[string]string
}

// SessionKey identifies the conversation a message belongs to.
func (m Message) SessionKey() string {
	return m.Platform + ":" + m.ChannelID + ":" + m.UserID
}

// ProfileID identifies the sender across conversations on one platform.
// User IDs from different platforms never share a profile.
func (m Message) ProfileID() string {
	return m.Platform + ":" + m.UserID
}

// Response is an outbound reply. Options, when set, are the answers the
// user can pick from; platforms render them as buttons or a list.
type Response struct {
	Text     string
	ThreadID string
	Options  []string
	// Document is the finished document text, sent after Text.
	Document string
	Metadata map[string]string
}

// Platform is a chat transport.
type Platform interface {
	Name() string
	SetMessageHandler(handler func(msg Message))
	Start(ctx context.Context) error
	Stop() error
	Send(ctx context.Context, channelID string, resp Response) error
}

// HandlerFunc answers one message.
type HandlerFunc func(ctx context.Context, msg Message) (Response, error)

// handlerTimeout bounds one turn, including profile and template I/O.
const handlerTimeout = 30 * time.Second

// Router fans messages from all registered platforms into one handler.
type Router struct {
	handler   HandlerFunc
	mu        sync.RWMutex
	platforms map[string]Platform
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a Router.
func New(handler HandlerFunc) *Router {
	return &Router{
		handler:   handler,
		platforms: make(map[string]Platform),
	}
}

// Register adds a platform. It must be called before Start.
func (r *Router) Register(p Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.platforms[p.Name()] = p
	p.SetMessageHandler(func(msg Message) {
		r.dispatch(p, msg)
	})
}

// Platforms returns the names of registered platforms.
func (r *Router) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.platforms))
	for name := range r.platforms {
		names = append(names, name)
	}
	return names
}

// Start starts every registered platform.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	r.ctx, r.cancel = context.WithCancel(ctx)
	platforms := make([]Platform, 0, len(r.platforms))
	for _, p := range r.platforms {
		platforms = append(platforms, p)
	}
	r.mu.Unlock()

	if len(platforms) == 0 {
		return fmt.Errorf("no platforms registered")
	}
	for _, p := range platforms {
		if err := p.Start(r.ctx); err != nil {
			return fmt.Errorf("failed to start %s: %w", p.Name(), err)
		}
		log.Printf("[Router] %s started", p.Name())
	}
	return nil
}

// Stop stops every platform.
func (r *Router) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	for name, p := range r.platforms {
		if err := p.Stop(); err != nil {
			log.Printf("[Router] failed to stop %s: %v", name, err)
		}
	}
}

// SendToUser pushes a message to a channel outside of a turn.
func (r *Router) SendToUser(platform, channelID string, resp Response) error {
	r.mu.RLock()
	p, ok := r.platforms[platform]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("platform %s not registered", platform)
	}
	return p.Send(r.context(), channelID, resp)
}

func (r *Router) context() context.Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}

func (r *Router) dispatch(p Platform, msg Message) {
	ctx, cancel := context.WithTimeout(r.context(), handlerTimeout)
	defer cancel()

	resp, err := r.handler(ctx, msg)
	if err != nil {
		log.Printf("[Router] handler error for %s: %v", msg.SessionKey(), err)
		resp = Response{Text: "Sorry, something went wrong. Please try again."}
	}
	if resp.Text == "" && resp.Document == "" {
		return
	}
	if resp.ThreadID == "" {
		resp.ThreadID = msg.ThreadID
	}
	if err := p.Send(ctx, msg.ChannelID, resp); err != nil {
		log.Printf("[Router] failed to send to %s/%s: %v", p.Name(), msg.ChannelID, err)
	}
}
