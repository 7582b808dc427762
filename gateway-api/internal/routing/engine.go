// Package routing decides which backend serves a gateway request.
package routing

import (
	"math/rand/v2"
	"strings"
	"sync"
)

// Backend identifies an upstream service.
type Backend string

const (
	BackendOrder  Backend = "order"
	BackendUserV1 Backend = "user-v1"
	BackendUserV2 Backend = "user-v2"
)

// DefaultOrderPrefix is the path prefix owned by the order service.
const DefaultOrderPrefix = "/orders"

// Decide is the routing rule. Order paths always go to the order service; every other path
// goes to v1 when draw <= splitPercent, otherwise to v2. draw is expected in [1,100].
func Decide(path, orderPrefix string, splitPercent, draw int) Backend {
	if strings.HasPrefix(path, orderPrefix) {
		return BackendOrder
	}
	if draw <= splitPercent {
		return BackendUserV1
	}
	return BackendUserV2
}

// Drawer produces uniform integers in [1,100]. Implementations must be safe for concurrent use.
type Drawer interface {
	Draw() int
}

type globalDrawer struct{}

// NewDrawer returns a Drawer backed by the runtime's shared random source.
func NewDrawer() Drawer {
	return globalDrawer{}
}

func (globalDrawer) Draw() int {
	return rand.IntN(100) + 1
}

type seededDrawer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededDrawer returns a deterministic Drawer.
func NewSeededDrawer(seed uint64) Drawer {
	return &seededDrawer{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (d *seededDrawer) Draw() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.IntN(100) + 1
}

// Decision records one routing outcome. Draw is zero when no draw was needed.
type Decision struct {
	Path    string
	Backend Backend
	Draw    int
}

// Engine applies Decide with an injected Drawer. It holds no mutable state of its own.
type Engine struct {
	drawer      Drawer
	orderPrefix string
}

func NewEngine(drawer Drawer, orderPrefix string) *Engine {
	if drawer == nil {
		drawer = NewDrawer()
	}
	if orderPrefix == "" {
		orderPrefix = DefaultOrderPrefix
	}
	return &Engine{drawer: drawer, orderPrefix: orderPrefix}
}

// Route picks the backend for path. Order paths consume no draw.
func (e *Engine) Route(path string, splitPercent int) Decision {
	if strings.HasPrefix(path, e.orderPrefix) {
		return Decision{Path: path, Backend: BackendOrder}
	}
	draw := e.drawer.Draw()
	return Decision{Path: path, Backend: Decide(path, e.orderPrefix, splitPercent, draw), Draw: draw}
}
