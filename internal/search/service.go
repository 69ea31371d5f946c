package search

import (
	"context"
	"fmt"
)

// Source is what Service needs from a Client.
type Source interface {
	FetchMetrics(ctx context.Context, query string, size int) ([]Document, error)
	FetchLogs(ctx context.Context, query string, size int) ([]Document, error)
}

// WaitStat is one normalized wait-statistics sample.
type WaitStat struct {
	Timestamp    string   `json:"timestamp"`
	Instance     string   `json:"instance"`
	WaitType     string   `json:"wait_type"`
	WaitTimeMS   *float64 `json:"wait_time_ms"`
	WaitingTasks *float64 `json:"waiting_tasks"`
}

// BlockingEvent is one normalized blocking sample.
type BlockingEvent struct {
	Timestamp         string   `json:"timestamp"`
	SessionID         *float64 `json:"session_id"`
	BlockingSessionID *float64 `json:"blocking_session_id"`
	WaitType          string   `json:"wait_type"`
	DurationMS        *float64 `json:"duration_ms"`
	QueryText         string   `json:"query_text"`
}

// Service answers the telemetry questions the API exposes.
type Service struct {
	src Source
}

func NewService(src Source) *Service { return &Service{src: src} }

// LatestWaits returns recent wait samples, optionally for one instance.
func (s *Service) LatestWaits(ctx context.Context, instance string, limit int) ([]WaitStat, error) {
	query := "*"
	if instance != "" {
		query = fmt.Sprintf("mssql_instance:%q", instance)
	}
	docs, err := s.src.FetchMetrics(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return NormalizeWaitStats(docs), nil
}

// BlockingSessions returns recent blocking samples, optionally for one
// instance.
func (s *Service) BlockingSessions(ctx context.Context, instance string, limit int) ([]BlockingEvent, error) {
	query := "blocking.session_id:*"
	if instance != "" {
		query += fmt.Sprintf(" AND mssql_instance:%q", instance)
	}
	docs, err := s.src.FetchMetrics(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return NormalizeBlocking(docs), nil
}

// RawLogs passes a Lucene query straight to the logs index.
func (s *Service) RawLogs(ctx context.Context, query string, limit int) ([]Document, error) {
	return s.src.FetchLogs(ctx, query, limit)
}

/*──────────────────────────── normalizers ──────────────────────────────────*/

func NormalizeWaitStats(docs []Document) []WaitStat {
	out := make([]WaitStat, 0, len(docs))
	for _, d := range docs {
		w := object(d, "wait_stats")
		out = append(out, WaitStat{
			Timestamp:    timestamp(d),
			Instance:     str(d, "mssql_instance"),
			WaitType:     str(w, "type"),
			WaitTimeMS:   num(w, "time_ms"),
			WaitingTasks: num(w, "tasks"),
		})
	}
	return out
}

func NormalizeBlocking(docs []Document) []BlockingEvent {
	out := make([]BlockingEvent, 0, len(docs))
	for _, d := range docs {
		b := object(d, "blocking")
		out = append(out, BlockingEvent{
			Timestamp:         timestamp(d),
			SessionID:         num(b, "session_id"),
			BlockingSessionID: num(b, "blocking_session_id"),
			WaitType:          str(b, "wait_type"),
			DurationMS:        num(b, "duration_ms"),
			QueryText:         str(b, "query_text"),
		})
	}
	return out
}

// timestamp prefers the ECS @timestamp field.
func timestamp(d Document) string {
	if ts := str(d, "@timestamp"); ts != "" {
		return ts
	}
	return str(d, "timestamp")
}

func object(d Document, key string) Document {
	if m, ok := d[key].(map[string]any); ok {
		return m
	}
	return nil
}

func str(d Document, key string) string {
	s, _ := d[key].(string)
	return s
}

func num(d Document, key string) *float64 {
	switch v := d[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	}
	return nil
}
