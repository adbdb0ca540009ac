// internal/browser/session/screenshot.go
package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tabctl/internal/config"
)

// Screenshot is the one-shot path: launch a session, load url, capture a PNG
// and tear everything down again.
func Screenshot(ctx context.Context, cfg config.Interface, logger *zap.Logger, url string, opts PageOptions, sessOpts ...Option) (png []byte, err error) {
	s, err := New(ctx, cfg, logger, sessOpts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := s.Close(ctx); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	if err := s.OpenURL(ctx, url, opts); err != nil {
		return nil, err
	}
	return s.CaptureScreenshot(ctx)
}
