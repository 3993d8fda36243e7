package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/logger"
)

// Handler runs registered cleanup functions once, in reverse registration
// order, when a run ends or a termination signal arrives.
type Handler struct {
	shutdownFuncs []func() error
	mu            sync.Mutex
	once          sync.Once
	done          chan struct{}
	logger        *logger.Logger
}

// NewHandler creates a new graceful shutdown handler
func NewHandler(log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		done:   make(chan struct{}),
		logger: log.WithComponent("shutdown"),
	}
}

// RegisterShutdownFunc registers a function to be called during shutdown
func (h *Handler) RegisterShutdownFunc(fn func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shutdownFuncs = append(h.shutdownFuncs, fn)
}

// NotifyContext returns a context cancelled on SIGINT or SIGTERM. The
// signal is logged; cleanup still runs through Shutdown.
func (h *Handler) NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			h.logger.Infow("Received signal, stopping run", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Shutdown executes all registered shutdown functions. Only the first call
// has any effect.
func (h *Handler) Shutdown() {
	h.once.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		for i := len(h.shutdownFuncs) - 1; i >= 0; i-- {
			if err := h.shutdownFuncs[i](); err != nil {
				h.logger.Warnw("Error during shutdown", "error", err)
			}
		}
		close(h.done)
	})
}

// Done returns a channel that's closed when shutdown is complete
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// ShutdownWithTimeout executes shutdown with a timeout
func (h *Handler) ShutdownWithTimeout(timeout time.Duration) error {
	go h.Shutdown()

	select {
	case <-h.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}
