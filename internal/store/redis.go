package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/z-assess/backend/internal/model/assessment"
)

// NewRedisClient parses url, falling back to a bare address, and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		opt = &redis.Options{Addr: url}
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisSessionStore keeps each session as a JSON document with an idle TTL.
// Update serializes writers within this process only; run a single API
// instance per Redis keyspace.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	locks  *KeyedMutex
}

// NewRedisSessionStore stores sessions under prefix+"session:".
func NewRedisSessionStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: prefix, ttl: ttl, locks: NewKeyedMutex()}
}

func (r *RedisSessionStore) key(id string) string {
	return r.prefix + "session:" + id
}

func (r *RedisSessionStore) Create(ctx context.Context, s *assessment.Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("%w: session without id", assessment.ErrInvariantViolation)
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.key(s.ID), payload, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: session %s already exists", assessment.ErrInvariantViolation, s.ID)
	}
	return nil
}

func (r *RedisSessionStore) Get(ctx context.Context, id string) (*assessment.Session, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", assessment.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var s assessment.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

func (r *RedisSessionStore) Update(ctx context.Context, id string, fn UpdateFunc) (*assessment.Session, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	s, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, r.key(id), payload, r.ttl).Err(); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return s, nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// RedisReportStore writes reports once with SETNX and keeps per-participant
// and per-report decision lists.
type RedisReportStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisReportStore stores reports under prefix+"report:".
func NewRedisReportStore(client redis.UniversalClient, prefix string) *RedisReportStore {
	return &RedisReportStore{client: client, prefix: prefix}
}

func (r *RedisReportStore) reportKey(id string) string {
	return r.prefix + "report:" + id
}

func (r *RedisReportStore) participantKey(id string) string {
	return r.prefix + "participant:" + id + ":reports"
}

func (r *RedisReportStore) decisionKey(reportID string) string {
	return r.prefix + "report:" + reportID + ":decisions"
}

func (r *RedisReportStore) SaveReport(ctx context.Context, rep assessment.Report) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.reportKey(rep.ID), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrReportExists, rep.ID)
	}
	if err := r.client.RPush(ctx, r.participantKey(rep.ParticipantID), rep.ID).Err(); err != nil {
		return fmt.Errorf("index report: %w", err)
	}
	return nil
}

func (r *RedisReportStore) GetReport(ctx context.Context, id string) (assessment.Report, error) {
	raw, err := r.client.Get(ctx, r.reportKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return assessment.Report{}, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	if err != nil {
		return assessment.Report{}, fmt.Errorf("load report: %w", err)
	}

	var rep assessment.Report
	if err := json.Unmarshal(raw, &rep); err != nil {
		return assessment.Report{}, fmt.Errorf("decode report %s: %w", id, err)
	}
	return rep, nil
}

func (r *RedisReportStore) ListReports(ctx context.Context, participantID string) ([]assessment.Report, error) {
	ids, err := r.client.LRange(ctx, r.participantKey(participantID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	out := make([]assessment.Report, 0, len(ids))
	for _, id := range ids {
		rep, err := r.GetReport(ctx, id)
		if errors.Is(err, ErrReportNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *RedisReportStore) DeleteReport(ctx context.Context, id string) error {
	rep, err := r.GetReport(ctx, id)
	if errors.Is(err, ErrReportNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.reportKey(id), r.decisionKey(id))
		pipe.LRem(ctx, r.participantKey(rep.ParticipantID), 0, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	return nil
}

func (r *RedisReportStore) SaveDecision(ctx context.Context, d assessment.Decision) error {
	exists, err := r.client.Exists(ctx, r.reportKey(d.ReportID)).Result()
	if err != nil {
		return fmt.Errorf("check report: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrReportNotFound, d.ReportID)
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode decision: %w", err)
	}
	if err := r.client.RPush(ctx, r.decisionKey(d.ReportID), payload).Err(); err != nil {
		return fmt.Errorf("save decision: %w", err)
	}
	return nil
}

func (r *RedisReportStore) Decisions(ctx context.Context, reportID string) ([]assessment.Decision, error) {
	items, err := r.client.LRange(ctx, r.decisionKey(reportID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}

	out := make([]assessment.Decision, 0, len(items))
	for _, item := range items {
		var d assessment.Decision
		if err := json.Unmarshal([]byte(item), &d); err != nil {
			return nil, fmt.Errorf("decode decision: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}
