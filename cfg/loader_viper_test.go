package cfg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeReloadLogger struct {
	infoCalls  []string
	errorCalls []string
}

func (f *fakeReloadLogger) Info(ctx context.Context, format string, args ...interface{}) {
	f.infoCalls = append(f.infoCalls, format)
}

func (f *fakeReloadLogger) Error(ctx context.Context, format string, args ...interface{}) {
	f.errorCalls = append(f.errorCalls, format)
}

func TestViperLoader_SetLoggerRoutesReloadNotifications(t *testing.T) {
	yl := &ViperLoader{}
	logger := &fakeReloadLogger{}
	yl.SetLogger(logger)

	yl.logInfo("reloaded")
	yl.logError("boom: %v", assert.AnError)

	assert.Equal(t, []string{"reloaded"}, logger.infoCalls)
	assert.Equal(t, []string{"boom: %v"}, logger.errorCalls)
}

func TestViperLoader_WithoutLoggerFallsBackWithoutPanicking(t *testing.T) {
	yl := &ViperLoader{}
	assert.NotPanics(t, func() {
		yl.logInfo("reloaded")
		yl.logError("boom: %v", assert.AnError)
	})
}
