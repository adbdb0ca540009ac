// internal/browser/diag/diag.go
package diag

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Screenshotter captures the current viewport as PNG bytes.
type Screenshotter interface {
	CaptureScreenshot(ctx context.Context) ([]byte, error)
}

// captureBudget bounds a diagnostic capture so that a wedged browser does
// not stall error reporting.
const captureBudget = 5 * time.Second

// SaveScreenshot captures a screenshot and writes it to path. It is best
// effort: every failure is logged at warn and reported as false, never
// returned. A nil shooter or empty path disables it.
func SaveScreenshot(ctx context.Context, fs afero.Fs, shooter Screenshotter, path string, logger *zap.Logger) bool {
	if shooter == nil || path == "" {
		return false
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}

	// The caller's context is usually the one that just expired.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), captureBudget)
	defer cancel()

	png, err := shooter.CaptureScreenshot(cctx)
	if err != nil {
		logger.Warn("Failed to capture diagnostic screenshot.", zap.String("path", path), zap.Error(err))
		return false
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			logger.Warn("Failed to create screenshot directory.", zap.String("dir", dir), zap.Error(err))
			return false
		}
	}
	if err := afero.WriteFile(fs, path, png, os.FileMode(0o644)); err != nil {
		logger.Warn("Failed to write diagnostic screenshot.", zap.String("path", path), zap.Error(err))
		return false
	}
	logger.Info("Saved diagnostic screenshot.", zap.String("path", path), zap.Int("bytes", len(png)))
	return true
}
