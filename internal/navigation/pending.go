package navigation

import (
	"context"
	"sync"

	"lanehud/internal/engine"
)

// PendingRoute is the result of one StartNavigation call. It completes
// exactly once, when the engine callback for its token arrives, when it is
// superseded or abandoned, or when the session is re-initialized.
type PendingRoute struct {
	token   string
	request engine.RouteRequest
	coord   *Coordinator

	once  sync.Once
	done  chan struct{}
	err   error
	route engine.Route
}

func newPendingRoute(c *Coordinator, token string, req engine.RouteRequest) *PendingRoute {
	return &PendingRoute{
		token:   token,
		request: req,
		coord:   c,
		done:    make(chan struct{}),
	}
}

// Token identifies the request this result correlates to.
func (p *PendingRoute) Token() string { return p.token }

// Request returns the submitted route request.
func (p *PendingRoute) Request() engine.RouteRequest { return p.request }

// Done is closed once the request has a result.
func (p *PendingRoute) Done() <-chan struct{} { return p.done }

// Err returns the result after Done is closed: nil on success, otherwise a
// *RoutingError.
func (p *PendingRoute) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Route returns the selected route after a successful completion.
func (p *PendingRoute) Route() engine.Route {
	select {
	case <-p.done:
		return p.route
	default:
		return nil
	}
}

// Wait blocks until the request completes or ctx ends. When ctx ends first
// the request is abandoned: its slot is released, a late engine callback is
// ignored, and a *RoutingError wrapping ctx.Err() is returned.
func (p *PendingRoute) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		p.coord.abandon(p, ctx.Err())
		<-p.done
		return p.err
	}
}

func (p *PendingRoute) finish(route engine.Route, err error) bool {
	finished := false
	p.once.Do(func() {
		p.route = route
		p.err = err
		close(p.done)
		finished = true
	})
	return finished
}
