// Package service holds the application services: ingesting completed tool
// calls into the history store and serving inspection queries over it.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	lensotel "github.com/agentlens/agentlens/internal/adapter/otel"
	"github.com/agentlens/agentlens/internal/adapter/ws"
	"github.com/agentlens/agentlens/internal/domain"
	"github.com/agentlens/agentlens/internal/domain/call"
	"github.com/agentlens/agentlens/internal/port/broadcast"
	"github.com/agentlens/agentlens/internal/port/history"
	"github.com/agentlens/agentlens/internal/port/messagequeue"
)

// metaTools are never recorded: the inspection tools must not observe
// themselves, and querying history must not grow it.
var metaTools = map[string]struct{}{
	"inspect_tool_calls":    {},
	"inspect_usage_stats":   {},
	"get_recent_tool_calls": {},
	"get_usage_stats":       {},
}

// ErrSkipped reports that a record was deliberately not appended (meta tool).
var ErrSkipped = errors.New("record skipped")

// RecordService ingests completed tool calls: it normalizes and validates
// records, appends them to the history store, and fans the committed record
// out to live observers.
type RecordService struct {
	store          history.Store
	queue          messagequeue.Queue
	hub            broadcast.Broadcaster
	metrics        *lensotel.Metrics
	defaultSession string
}

// NewRecordService creates a RecordService. queue, hub and metrics may be nil
// when the corresponding surface is disabled. Records arriving without a
// session ID are attributed to a process-lifetime session.
func NewRecordService(store history.Store, queue messagequeue.Queue, hub broadcast.Broadcaster, metrics *lensotel.Metrics) *RecordService {
	return &RecordService{
		store:          store,
		queue:          queue,
		hub:            hub,
		metrics:        metrics,
		defaultSession: uuid.NewString(),
	}
}

// Record normalizes, validates and appends one completed tool call.
// Meta tools are skipped with ErrSkipped; validation failures leave the
// store untouched.
func (s *RecordService) Record(ctx context.Context, rec *call.Record) error {
	if _, meta := metaTools[rec.ToolName]; meta {
		if s.metrics != nil {
			s.metrics.CallsSkipped.Add(ctx, 1)
		}
		return fmt.Errorf("meta tool %s: %w", rec.ToolName, ErrSkipped)
	}

	rec.Normalize(time.Now().UTC())
	if rec.SessionID == "" {
		rec.SessionID = s.defaultSession
	}
	if err := rec.Validate(); err != nil {
		if s.metrics != nil {
			s.metrics.CallsSkipped.Add(ctx, 1)
		}
		return err
	}

	ctx, span := lensotel.StartAppendSpan(ctx, rec.ToolName, rec.Category)
	defer span.End()

	start := time.Now()
	if err := s.store.Append(ctx, rec); err != nil {
		if s.metrics != nil {
			s.metrics.AppendFailures.Add(ctx, 1)
		}
		return fmt.Errorf("record call: %w", err)
	}
	if s.metrics != nil {
		s.metrics.CallsRecorded.Add(ctx, 1)
		s.metrics.AppendLatency.Record(ctx, time.Since(start).Seconds())
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventCallRecorded, rec)
	}
	s.publishCommitted(ctx, rec)

	return nil
}

// publishCommitted notifies downstream consumers of the committed record.
// Best effort: a publish failure never unwinds a committed append.
func (s *RecordService) publishCommitted(ctx context.Context, rec *call.Record) {
	if s.queue == nil {
		return
	}
	payload := messagequeue.CallCommittedPayload{
		SequenceID: rec.SequenceID,
		ToolName:   rec.ToolName,
		Category:   rec.Category,
		Succeeded:  rec.Succeeded,
		SessionID:  rec.SessionID,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal committed payload", "error", err)
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectCallCommitted, data); err != nil {
		slog.Debug("publish committed record failed", "sequence", rec.SequenceID, "error", err)
	}
}

// StartCallSubscriber consumes completed tool calls from the message queue
// and appends them to the history. The returned function cancels the
// subscription.
func (s *RecordService) StartCallSubscriber(ctx context.Context) (func(), error) {
	if s.queue == nil {
		return nil, errors.New("message queue not configured")
	}
	return s.queue.Subscribe(ctx, messagequeue.SubjectCallCompleted, s.handleCompleted)
}

// handleCompleted maps one tools.call.completed message to a Record and
// appends it. Malformed messages are dropped (acked) after logging: redelivery
// cannot fix a bad payload.
func (s *RecordService) handleCompleted(ctx context.Context, subject string, data []byte) error {
	if err := messagequeue.Validate(subject, data); err != nil {
		slog.Warn("dropping malformed call message", "subject", subject, "error", err)
		if s.metrics != nil {
			s.metrics.CallsSkipped.Add(ctx, 1)
		}
		return nil
	}

	var payload messagequeue.CallCompletedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Warn("dropping undecodable call message", "subject", subject, "error", err)
		return nil
	}

	rec := &call.Record{
		ToolName:   payload.ToolName,
		Category:   payload.Category,
		Arguments:  payload.Arguments,
		Output:     payload.Output,
		Succeeded:  payload.Succeeded,
		Error:      payload.Error,
		DurationMS: payload.DurationMS,
		SessionID:  payload.SessionID,
	}
	if payload.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, payload.Timestamp)
		if err != nil {
			slog.Warn("dropping call message with bad timestamp", "timestamp", payload.Timestamp, "error", err)
			return nil
		}
		rec.Timestamp = ts
	}

	err := s.Record(ctx, rec)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSkipped), errors.Is(err, domain.ErrValidation):
		// Not retryable; drop.
		slog.Debug("call message not recorded", "tool", payload.ToolName, "reason", err)
		return nil
	default:
		// Persistence failures are retryable: NAK for redelivery.
		return err
	}
}
