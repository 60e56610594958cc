package redis

import (
	"context"
	"time"

	"github.com/wmsflow/rulebus/model"
	"github.com/wmsflow/rulebus/persistence"
	"github.com/wmsflow/rulebus/util"
)

const EXECLOG_KEY string = "EXECLOG"
const EXECKEY_KEY string = "EXECKEY"

// Idempotency keys expire after a day; the audit rows themselves never do.
const execKeyTTL = 24 * time.Hour

var _ persistence.ExecutionLogStorage = new(redisExecutionLogStorage)

type redisExecutionLogStorage struct {
	*baseDao
	logEncDec util.EncoderDecoder[model.ExecutionLog]
}

func NewRedisExecutionLogStorage(conf Config) *redisExecutionLogStorage {
	return &redisExecutionLogStorage{
		baseDao:   newBaseDao(conf),
		logEncDec: util.NewJsonEncoderDecoder[model.ExecutionLog](),
	}
}

func (s *redisExecutionLogStorage) AppendExecution(log model.ExecutionLog) error {
	data, err := s.logEncDec.Encode(log)
	if err != nil {
		return err
	}
	key := s.getNamespaceKey(EXECLOG_KEY, log.RuleId)
	ctx := context.Background()
	if err := s.redisClient.RPush(ctx, key, string(data)).Err(); err != nil {
		return persistence.StorageLayerError{Err: err}
	}
	return nil
}

func (s *redisExecutionLogStorage) ListExecutions(ruleId string, page int, size int) ([]model.ExecutionLog, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 20
	}
	key := s.getNamespaceKey(EXECLOG_KEY, ruleId)
	ctx := context.Background()
	start := int64(page * size)
	end := start + int64(size) - 1
	vals, err := s.redisClient.LRange(ctx, key, start, end).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Err: err}
	}
	logs := make([]model.ExecutionLog, 0, len(vals))
	for _, v := range vals {
		l, err := s.logEncDec.Decode([]byte(v))
		if err != nil {
			return nil, err
		}
		logs = append(logs, *l)
	}
	return logs, nil
}

func (s *redisExecutionLogStorage) MarkExecuted(ruleId string, eventId string) (bool, error) {
	key := s.getNamespaceKey(EXECKEY_KEY, ruleId, eventId)
	ctx := context.Background()
	ok, err := s.redisClient.SetNX(ctx, key, "1", execKeyTTL).Result()
	if err != nil {
		return false, persistence.StorageLayerError{Err: err}
	}
	return ok, nil
}
