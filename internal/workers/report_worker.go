package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/services"
	"github.com/yoockh/yoointerview/internal/storage"
	"github.com/yoockh/yoointerview/internal/utils"
)

const (
	DefaultReportStream = "interview:reports"
	reportField         = "report"
)

// RedisReportQueue publishes completed interview reports onto a Redis stream.
type RedisReportQueue struct {
	Redis  *redis.Client
	Stream string
}

func (q *RedisReportQueue) Enqueue(ctx context.Context, r models.Report) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	stream := q.Stream
	if stream == "" {
		stream = DefaultReportStream
	}
	return q.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"session_id": r.SessionID,
			reportField:  string(b),
		},
	}).Err()
}

type SessionCompleter interface {
	Complete(ctx context.Context, sessionID string, out models.SessionOutcome) (*models.InterviewSession, error)
}

// ReportWorkerPool archives finished interviews: it stores the transcript in
// Postgres, uploads the report JSON and marks the Mongo session completed.
type ReportWorkerPool struct {
	Redis         *redis.Client
	Conversations services.ConversationService
	Sessions      SessionCompleter
	Uploader      storage.Uploader // optional
	NumWorkers    int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *ReportWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Conversations == nil || p.Sessions == nil {
		return errors.New("ReportWorkerPool missing dependency: Redis/Conversations/Sessions must be set")
	}
	p.defaults()

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *ReportWorkerPool) defaults() {
	if p.Stream == "" {
		p.Stream = DefaultReportStream
	}
	if p.Group == "" {
		p.Group = "report-workers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "r"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}
}

func (p *ReportWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			p.Logger.WithError(err).Warn("report stream read failed")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				if p.handleMsg(ctx, msg) {
					_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
				}
			}
		}
	}
}

// handleMsg reports whether the message should be acknowledged. Malformed
// messages and reports for unknown sessions are acked and dropped; transient
// failures stay pending.
func (p *ReportWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) bool {
	log := p.Logger.WithField("redis_id", msg.ID)

	r, err := DecodeReport(msg.Values)
	if err != nil {
		log.WithError(err).Warn("dropping malformed report message")
		return true
	}

	log = log.WithField("session_id", r.SessionID)
	if err := p.Process(ctx, r); err != nil {
		if utils.IsCode(err, utils.CodeNotFound) || utils.IsCode(err, utils.CodeInvalidArgument) {
			log.WithError(err).Warn("dropping report that can never be archived")
			return true
		}
		log.WithError(err).Error("report processing failed")
		return false
	}
	log.Info("interview report archived")
	return true
}

// Process archives one report. Every step is idempotent so a redelivered
// message yields the same stored state.
func (p *ReportWorkerPool) Process(ctx context.Context, r models.Report) error {
	if _, err := p.Conversations.AppendTurns(ctx, r.UserID, r.SessionID, r.Turns); err != nil {
		return fmt.Errorf("store conversation: %w", err)
	}

	var path string
	if p.Uploader != nil {
		b, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		path, err = p.Uploader.Upload(ctx, storage.ReportObject(r.SessionID), "application/json", bytes.NewReader(b))
		if err != nil {
			return fmt.Errorf("upload report: %w", err)
		}
	}

	_, err := p.Sessions.Complete(ctx, r.SessionID, models.SessionOutcome{
		EndedAt:        r.EndedAt,
		OverallScore:   r.OverallScore,
		TotalResponses: r.Responses,
		ReportPath:     path,
	})
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return nil
}

func DecodeReport(values map[string]any) (models.Report, error) {
	raw, _ := values[reportField].(string)
	if raw == "" {
		return models.Report{}, errors.New("missing report payload")
	}
	var r models.Report
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return models.Report{}, err
	}
	if r.SessionID == "" || r.UserID == "" {
		return models.Report{}, errors.New("report missing session_id or user_id")
	}
	return r, nil
}
