package middleware

import (
	"sort"
	"sync"

	"github.com/valyala/fasthttp"

	"github.com/gridironlabs/gridfeed/types"
)

// Manager executes registered middlewares in weight order around route
// handlers. Routes opt out of individual middlewares by name through their
// RouteConfig.
type Manager struct {
	logger      types.Logger
	middlewares []types.Middleware
	mu          sync.RWMutex
}

func NewManager(logger types.Logger) *Manager {
	return &Manager{logger: logger}
}

func (m *Manager) Register(middleware types.Middleware) error {
	if middleware == nil {
		return types.ErrMiddlewareNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.middlewares {
		if existing.Name() == middleware.Name() {
			return types.Errorf(types.ErrMiddlewareNotFound, "duplicate middleware: %s", middleware.Name())
		}
	}

	m.middlewares = append(m.middlewares, middleware)
	sort.SliceStable(m.middlewares, func(i, j int) bool {
		return m.middlewares[i].Weight() < m.middlewares[j].Weight()
	})

	return nil
}

func (m *Manager) Execute(ctx *fasthttp.RequestCtx, handler fasthttp.RequestHandler, config *types.RouteConfig) {
	m.mu.RLock()
	active := m.activeChain(config)
	m.mu.RUnlock()

	if len(active) == 0 {
		handler(ctx)
		return
	}

	var index int
	var next fasthttp.RequestHandler
	next = func(ctx *fasthttp.RequestCtx) {
		if index >= len(active) {
			handler(ctx)
			return
		}

		middleware := active[index]
		index++
		middleware.Handle(ctx, next, config)
	}

	next(ctx)
}

func (m *Manager) activeChain(config *types.RouteConfig) []types.Middleware {
	if config == nil || len(config.DisabledMiddlewares) == 0 {
		return m.middlewares
	}

	disabled := make(map[string]bool, len(config.DisabledMiddlewares))
	for _, name := range config.DisabledMiddlewares {
		disabled[name] = true
	}

	active := make([]types.Middleware, 0, len(m.middlewares))
	for _, middleware := range m.middlewares {
		if !disabled[middleware.Name()] {
			active = append(active, middleware)
		}
	}
	return active
}
