package reminder

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	domain "github.com/NordCoder/Puntos/internal/domain/reminder"
)

// Prompter shows the permission prompt to the user and waits for the answer.
// It returns domain.ErrNotUserInitiated when the user cannot be reached.
type Prompter interface {
	Prompt(ctx context.Context, userID string) (domain.Permission, error)
}

const defaultPromptTimeout = 60 * time.Second

// Gate tracks one user's notification permission.
type Gate struct {
	userID    string
	supported bool
	prompter  Prompter
	timeout   time.Duration
	log       *zap.Logger

	mu    sync.Mutex
	state domain.Permission
}

func NewGate(userID string, caps domain.Capabilities, p Prompter, timeout time.Duration, log *zap.Logger) *Gate {
	if timeout <= 0 {
		timeout = defaultPromptTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{
		userID:    userID,
		supported: caps.SupportsNotifications,
		prompter:  p,
		timeout:   timeout,
		log:       log,
		state:     domain.PermissionDefault,
	}
}

func (g *Gate) State() domain.Permission {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) IsSupported() bool { return g.supported }

// Report records a permission state observed by the client.
func (g *Gate) Report(p domain.Permission) {
	g.mu.Lock()
	g.state = p
	g.mu.Unlock()
}

// Restore applies a persisted permission unless the client already reported
// a fresher one.
func (g *Gate) Restore(p domain.Permission) {
	g.mu.Lock()
	if g.state == domain.PermissionDefault {
		g.state = p
	}
	g.mu.Unlock()
}

// RequestPermission prompts once and reports whether permission was granted.
// Failures of any kind leave the state unchanged and yield false.
func (g *Gate) RequestPermission(ctx context.Context) bool {
	if !g.supported || g.prompter == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	p, err := g.prompter.Prompt(ctx, g.userID)
	if err != nil {
		g.log.Debug("permission prompt failed", zap.String("user_id", g.userID), zap.Error(err))
		return false
	}
	if _, perr := domain.ParsePermission(string(p)); perr != nil {
		g.log.Warn("permission prompt answered garbage", zap.String("user_id", g.userID), zap.String("answer", string(p)))
		return false
	}
	g.Report(p)
	return p == domain.PermissionGranted
}
