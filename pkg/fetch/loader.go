package fetch

import (
	"context"
	"errors"
	"sync"

	"github.com/aarondl/opt/null"
	"github.com/google/uuid"

	"github.com/echook/telemetry-manager-go/pkg/model"
)

// ErrSuperseded signals that a newer load was started while this one was
// in flight and its result must be discarded.
var ErrSuperseded = errors.New("load superseded by a newer request")

// Loader runs bulk history loads tagged with a generation token. Starting
// a new generation invalidates every load still in flight, so slow
// responses can never overwrite the result of a newer request.
type Loader struct {
	client *Client

	mu      sync.Mutex
	current uuid.UUID
}

func NewLoader(client *Client) *Loader {
	return &Loader{client: client}
}

// Begin starts a new generation and supersedes all outstanding loads.
func (l *Loader) Begin() uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = uuid.New()
	return l.current
}

// Load fetches the range and returns ErrSuperseded if gen is no longer
// the current generation by the time the response arrives. Callers that
// apply the records later must check Current again before doing so.
func (l *Loader) Load(ctx context.Context, gen uuid.UUID, start int64, end null.Val[int64]) (
	[]model.RawRecord, error,
) {
	records, err := l.client.FetchRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if !l.Current(gen) {
		return nil, ErrSuperseded
	}
	return records, nil
}

// Current reports whether gen is still the active generation.
func (l *Loader) Current(gen uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return gen == l.current
}
