// Package directory resolves actor identifiers to display names and
// roles. The engine treats it as a read-only collaborator: resolution
// failures degrade to the bare actor id, never to an error.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/procesio/procesio/internal/observability"
)

// Actor is a directory snapshot for one identity.
type Actor struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Resolver looks up actor snapshots.
type Resolver interface {
	// Resolve returns the snapshot for an actor id. Unknown ids return
	// a snapshot with Name set to the id itself.
	Resolve(ctx context.Context, actorID string) Actor
}

// StaticResolver serves a fixed id → name map from configuration.
type StaticResolver struct {
	actors map[string]Actor
}

// NewStaticResolver builds a resolver over a name map.
func NewStaticResolver(names map[string]string) *StaticResolver {
	actors := make(map[string]Actor, len(names))
	for id, name := range names {
		actors[id] = Actor{ID: id, Name: name}
	}
	return &StaticResolver{actors: actors}
}

func (r *StaticResolver) Resolve(ctx context.Context, actorID string) Actor {
	if actor, ok := r.actors[actorID]; ok {
		return actor
	}
	return Actor{ID: actorID, Name: actorID}
}

// HTTPResolver queries an external directory service, caching
// snapshots for a TTL so hot actors do not hammer the service.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
	ttl     time.Duration

	mu    sync.RWMutex
	cache map[string]cachedActor
}

type cachedActor struct {
	actor   Actor
	expires time.Time
}

// NewHTTPResolver builds a resolver against a directory base URL.
func NewHTTPResolver(baseURL string, timeout, ttl time.Duration) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		ttl:     ttl,
		cache:   make(map[string]cachedActor),
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, actorID string) Actor {
	if actor, ok := r.cached(actorID); ok {
		return actor
	}

	actor, err := r.fetch(ctx, actorID)
	if err != nil {
		observability.LoggerFrom(ctx).Warn("directory lookup failed",
			zap.String("actor_id", actorID),
			zap.Error(err),
		)
		return Actor{ID: actorID, Name: actorID}
	}

	r.mu.Lock()
	r.cache[actorID] = cachedActor{actor: actor, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()
	return actor
}

func (r *HTTPResolver) cached(actorID string) (Actor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[actorID]
	if !ok || time.Now().After(entry.expires) {
		return Actor{}, false
	}
	return entry.actor, true
}

func (r *HTTPResolver) fetch(ctx context.Context, actorID string) (Actor, error) {
	endpoint := fmt.Sprintf("%s/actors/%s", r.baseURL, url.PathEscape(actorID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Actor{}, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Actor{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Actor{}, fmt.Errorf("directory returned %d", resp.StatusCode)
	}

	var actor Actor
	if err := json.NewDecoder(resp.Body).Decode(&actor); err != nil {
		return Actor{}, err
	}
	if actor.ID == "" {
		actor.ID = actorID
	}
	if actor.Name == "" {
		actor.Name = actorID
	}
	return actor, nil
}

// Ping verifies the directory service is reachable. Satisfies the
// readiness checker.
func (r *HTTPResolver) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("directory health returned %d", resp.StatusCode)
	}
	return nil
}
