package proctor

import (
	"context"
	"sync"

	"github.com/yoockh/yooproctor/internal/utils"
)

type Display interface {
	RequestFullscreen(ctx context.Context) error
	ExitFullscreen(ctx context.Context) error
}

type FullscreenChange int

const (
	FullscreenUnchanged FullscreenChange = iota
	FullscreenEntered
	// FullscreenUserExited means fullscreen was active and the user left it.
	FullscreenUserExited
)

type FullscreenController struct {
	display Display

	mu     sync.Mutex
	active bool
}

func NewFullscreenController(d Display) *FullscreenController {
	return &FullscreenController{display: d}
}

func (f *FullscreenController) Enter(ctx context.Context) error {
	if err := f.display.RequestFullscreen(ctx); err != nil {
		return utils.E(utils.CodeForbidden, "FullscreenController.Enter", "fullscreen mode was not granted", err)
	}
	f.mu.Lock()
	f.active = true
	f.mu.Unlock()
	return nil
}

// Exit leaves fullscreen if it is active. It is safe to call repeatedly.
func (f *FullscreenController) Exit(ctx context.Context) error {
	f.mu.Lock()
	if !f.active {
		f.mu.Unlock()
		return nil
	}
	f.active = false
	f.mu.Unlock()
	return f.display.ExitFullscreen(ctx)
}

func (f *FullscreenController) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Observe records a fullscreen-change signal from the client.
func (f *FullscreenController) Observe(fullscreen bool) FullscreenChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case fullscreen && !f.active:
		f.active = true
		return FullscreenEntered
	case !fullscreen && f.active:
		f.active = false
		return FullscreenUserExited
	default:
		return FullscreenUnchanged
	}
}
