package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avaestate/ava-agent/internal/agent/model"
	errx "github.com/avaestate/ava-agent/internal/core/error"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

// Meta hash fields.
const (
	fieldSummary         = "summary"
	fieldWorkflow        = "workflow"
	fieldCurrentActivity = "current_activity"
	fieldApplyActivity   = "apply_activity"
	fieldNeedsAPI        = "needs_api"
	fieldAPIInfo         = "api_info"
	fieldAPIParams       = "api_params"
	fieldProjectID       = "project_id"
	fieldProjectName     = "project_name"
	fieldUpdatedAt       = "updated_at"
)

// RedisCheckpointStore keeps the message list and the scalar fields of a
// thread in two keys that are always rewritten together.
type RedisCheckpointStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisCheckpointStore(rdb redis.Cmdable, ttl time.Duration) *RedisCheckpointStore {
	return &RedisCheckpointStore{rdb: rdb, ttl: ttl}
}

func (r *RedisCheckpointStore) messagesKey(threadID string) string {
	return fmt.Sprintf("conversation:%s:messages", threadID)
}

func (r *RedisCheckpointStore) metaKey(threadID string) string {
	return fmt.Sprintf("conversation:%s:meta", threadID)
}

func (r *RedisCheckpointStore) Load(ctx context.Context, threadID string) (*model.ConversationState, error) {
	var (
		rows *redis.StringSliceCmd
		meta *redis.MapStringStringCmd
	)
	_, err := r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		rows = p.LRange(ctx, r.messagesKey(threadID), 0, -1)
		meta = p.HGetAll(ctx, r.metaKey(threadID))
		return nil
	})
	if err != nil && err != redis.Nil {
		logx.Error().Err(err).Str("conversation_id", threadID).Msg("failed to load checkpoint from redis")
		return nil, errx.WrapRedis(err)
	}

	fields := meta.Val()
	list := rows.Val()
	if len(fields) == 0 && len(list) == 0 {
		return nil, nil
	}

	s := model.NewConversationState(threadID)
	for i, row := range list {
		var m model.Message
		if err := json.Unmarshal([]byte(row), &m); err != nil {
			logx.Error().Err(err).Str("conversation_id", threadID).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		s.Messages = append(s.Messages, m)
	}
	if err := decodeMeta(fields, s); err != nil {
		return nil, fmt.Errorf("decode checkpoint meta: %w", err)
	}
	return s, nil
}

// Save replaces both keys in one MULTI/EXEC, so messages removed by the
// summarizer disappear from Redis as well.
func (r *RedisCheckpointStore) Save(ctx context.Context, s *model.ConversationState) error {
	if s == nil || s.ThreadID == "" {
		return errx.ErrMissingThreadID
	}
	rows := make([]any, 0, len(s.Messages))
	for _, m := range s.Messages {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal message %s: %w", m.ID, err)
		}
		rows = append(rows, b)
	}
	fields, err := encodeMeta(s)
	if err != nil {
		return err
	}

	msgKey, metaKey := r.messagesKey(s.ThreadID), r.metaKey(s.ThreadID)
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, msgKey, metaKey)
		if len(rows) > 0 {
			p.RPush(ctx, msgKey, rows...)
		}
		p.HSet(ctx, metaKey, fields)
		if r.ttl > 0 {
			p.Expire(ctx, msgKey, r.ttl)
			p.Expire(ctx, metaKey, r.ttl)
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", s.ThreadID).Msg("failed to save checkpoint to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisCheckpointStore) Delete(ctx context.Context, threadID string) error {
	if err := r.rdb.Del(ctx, r.messagesKey(threadID), r.metaKey(threadID)).Err(); err != nil {
		logx.Error().Err(err).Str("conversation_id", threadID).Msg("failed to delete checkpoint from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func encodeMeta(s *model.ConversationState) (map[string]any, error) {
	fields := map[string]any{
		fieldSummary:         s.Summary,
		fieldWorkflow:        s.Workflow,
		fieldCurrentActivity: s.CurrentActivity,
		fieldApplyActivity:   strconv.FormatBool(s.ApplyActivity),
		fieldNeedsAPI:        strconv.FormatBool(s.NeedsAPI),
		fieldAPIInfo:         s.APIInfo,
		fieldProjectName:     s.ProjectName,
		fieldUpdatedAt:       s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if s.APIParams != nil {
		b, err := json.Marshal(s.APIParams)
		if err != nil {
			return nil, fmt.Errorf("marshal api params: %w", err)
		}
		fields[fieldAPIParams] = string(b)
	}
	if s.ProjectID != nil {
		fields[fieldProjectID] = strconv.Itoa(*s.ProjectID)
	}
	return fields, nil
}

func decodeMeta(fields map[string]string, s *model.ConversationState) error {
	s.Summary = fields[fieldSummary]
	s.Workflow = fields[fieldWorkflow]
	s.CurrentActivity = fields[fieldCurrentActivity]
	s.APIInfo = fields[fieldAPIInfo]
	s.ProjectName = fields[fieldProjectName]
	s.ApplyActivity, _ = strconv.ParseBool(fields[fieldApplyActivity])
	s.NeedsAPI, _ = strconv.ParseBool(fields[fieldNeedsAPI])

	if raw := fields[fieldAPIParams]; raw != "" {
		var q model.SearchQuery
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return fmt.Errorf("api params: %w", err)
		}
		s.APIParams = &q
	}
	if raw := fields[fieldProjectID]; raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("project id: %w", err)
		}
		s.ProjectID = &id
	}
	if raw := fields[fieldUpdatedAt]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return fmt.Errorf("updated at: %w", err)
		}
		s.UpdatedAt = t
	}
	return nil
}

var _ model.CheckpointStore = (*RedisCheckpointStore)(nil)
