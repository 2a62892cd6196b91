// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

package security_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/veilchat/veilchat/internal/security"
)

// captureRepo records appended events; appendErr injects failures and
// block makes Append wait until released.
type captureRepo struct {
	mu        sync.Mutex
	events    []security.Event
	appendErr error
	block     chan struct{}
}

func (r *captureRepo) Append(_ context.Context, event security.Event) error {
	if r.block != nil {
		<-r.block
	}
	if r.appendErr != nil {
		return r.appendErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *captureRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestEventLoggerPersistsEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := &captureRepo{}
	logger := security.NewEventLogger(repo, slog.New(slog.DiscardHandler), 16)

	userID := ulid.Make()
	logger.Log(&userID, security.EventLoginFailed, "192.0.2.1", "agent", map[string]any{"failed_attempts": 1})
	logger.Log(nil, security.EventSuspiciousActivity, "", "", nil)

	// Close drains the queue before returning.
	logger.Close()

	require.Equal(t, 2, repo.count())
	assert.Equal(t, security.EventLoginFailed, repo.events[0].EventType)
	assert.Equal(t, 3, repo.events[0].RiskLevel)
	assert.Nil(t, repo.events[1].UserID)
}

func TestEventLoggerCloseIsIdempotent(t *testing.T) {
	logger := security.NewEventLogger(&captureRepo{}, slog.New(slog.DiscardHandler), 1)
	logger.Close()
	logger.Close()
}

func TestEventLoggerNeverBlocksCaller(t *testing.T) {
	// A stalled repository must not stall Log: overflow drops instead.
	block := make(chan struct{})
	repo := &captureRepo{block: block}
	logger := security.NewEventLogger(repo, slog.New(slog.DiscardHandler), 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			logger.Log(nil, security.EventLoginFailed, "", "", nil)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Log blocked on a stalled repository")
	}

	close(block)
	logger.Close()

	// The worker and the 1-slot queue hold at most a few events; the rest
	// were dropped rather than queued.
	assert.Less(t, repo.count(), 50)
}

func TestEventLoggerSwallowsWriteFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	var buf bytes.Buffer
	repo := &captureRepo{appendErr: errors.New("insert failed")}
	logger := security.NewEventLogger(repo, slog.New(slog.NewTextHandler(&buf, nil)), 16)

	logger.Log(nil, security.EventLoginSuccess, "", "", nil)
	logger.Close()

	assert.Contains(t, buf.String(), "failed to persist security event")
}

func TestEventLoggerLeveledDiagnostics(t *testing.T) {
	tests := []struct {
		eventType string
		level     string
	}{
		{security.EventLoginSuccess, "level=INFO"},
		{security.EventAccountLocked, "level=WARN"},
		{security.EventDestructionTriggered, "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			var buf bytes.Buffer
			logger := security.NewEventLogger(&captureRepo{}, slog.New(slog.NewTextHandler(&buf, nil)), 4)

			logger.Log(nil, tt.eventType, "", "", nil)
			logger.Close()

			assert.Contains(t, buf.String(), tt.level)
			assert.Contains(t, buf.String(), tt.eventType)
		})
	}
}
