// internal/browser/diag/diag_test.go
package diag_test

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/tabctl/internal/browser/diag"
	"github.com/xkilldash9x/tabctl/internal/mocks"
)

func TestSaveScreenshot_Writes(t *testing.T) {
	fs := afero.NewMemMapFs()
	shooter := new(mocks.MockScreenshotter)
	shooter.On("CaptureScreenshot", mock.Anything).Return([]byte("png"), nil).Once()

	ok := diag.SaveScreenshot(context.Background(), fs, shooter, "/shots/fail.png", zap.NewNop())
	require.True(t, ok)

	data, err := afero.ReadFile(fs, "/shots/fail.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
	shooter.AssertExpectations(t)
}

func TestSaveScreenshot_CaptureFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	fs := afero.NewMemMapFs()
	shooter := new(mocks.MockScreenshotter)
	shooter.On("CaptureScreenshot", mock.Anything).Return(nil, errors.New("target crashed"))

	ok := diag.SaveScreenshot(context.Background(), fs, shooter, "/fail.png", zap.New(core))
	assert.False(t, ok)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Failed to capture diagnostic screenshot.", logs.All()[0].Message)

	exists, err := afero.Exists(fs, "/fail.png")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSaveScreenshot_WriteFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	shooter := new(mocks.MockScreenshotter)
	shooter.On("CaptureScreenshot", mock.Anything).Return([]byte("png"), nil)

	ok := diag.SaveScreenshot(context.Background(), afero.NewReadOnlyFs(afero.NewMemMapFs()), shooter, "/x/fail.png", zap.New(core))
	assert.False(t, ok)
	assert.Equal(t, 1, logs.Len())
}

func TestSaveScreenshot_CanceledContextStillCaptures(t *testing.T) {
	fs := afero.NewMemMapFs()
	shooter := new(mocks.MockScreenshotter)
	shooter.On("CaptureScreenshot", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	})).Return([]byte("png"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, diag.SaveScreenshot(ctx, fs, shooter, "/a.png", nil))
}

func TestSaveScreenshot_Disabled(t *testing.T) {
	shooter := new(mocks.MockScreenshotter)
	assert.False(t, diag.SaveScreenshot(context.Background(), afero.NewMemMapFs(), shooter, "", nil))
	assert.False(t, diag.SaveScreenshot(context.Background(), afero.NewMemMapFs(), nil, "/a.png", nil))
	shooter.AssertNotCalled(t, "CaptureScreenshot", mock.Anything)
}
