package redis

import (
	"context"
	"errors"

	rd "github.com/go-redis/redis/v9"
	"github.com/wmsflow/rulebus/model"
	"github.com/wmsflow/rulebus/persistence"
	"github.com/wmsflow/rulebus/util"
)

const POLICY_KEY string = "POLICY"

var _ persistence.PolicyStorage = new(redisPolicyStorage)

type redisPolicyStorage struct {
	*baseDao
	policyEncDec util.EncoderDecoder[model.ApprovalPolicy]
}

func NewRedisPolicyStorage(conf Config) *redisPolicyStorage {
	return &redisPolicyStorage{
		baseDao:      newBaseDao(conf),
		policyEncDec: util.NewJsonEncoderDecoder[model.ApprovalPolicy](),
	}
}

func (s *redisPolicyStorage) SavePolicy(policy model.ApprovalPolicy) error {
	data, err := s.policyEncDec.Encode(policy)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := s.redisClient.HSet(ctx, s.getNamespaceKey(POLICY_KEY), policy.DocumentType, string(data)).Err(); err != nil {
		return persistence.StorageLayerError{Err: err}
	}
	return nil
}

func (s *redisPolicyStorage) GetPolicy(documentType string) (*model.ApprovalPolicy, error) {
	ctx := context.Background()
	val, err := s.redisClient.HGet(ctx, s.getNamespaceKey(POLICY_KEY), documentType).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "approval policy", Id: documentType}
		}
		return nil, persistence.StorageLayerError{Err: err}
	}
	return s.policyEncDec.Decode([]byte(val))
}
