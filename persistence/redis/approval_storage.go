package redis

import (
	"context"
	"errors"
	"fmt"

	rd "github.com/go-redis/redis/v9"
	"github.com/wmsflow/rulebus/model"
	"github.com/wmsflow/rulebus/persistence"
	"github.com/wmsflow/rulebus/util"
)

const CHAIN_KEY string = "CHAIN"
const CHAIN_OPEN_KEY string = "CHAIN_OPEN"
const GROUP_KEY string = "GROUP"
const GROUP_OPEN_KEY string = "GROUP_OPEN"

var _ persistence.ApprovalStorage = new(redisApprovalStorage)

type redisApprovalStorage struct {
	*baseDao
	chainEncDec util.EncoderDecoder[model.ApprovalChain]
	groupEncDec util.EncoderDecoder[model.ParallelApprovalGroup]
}

func NewRedisApprovalStorage(conf Config) *redisApprovalStorage {
	return &redisApprovalStorage{
		baseDao:     newBaseDao(conf),
		chainEncDec: util.NewJsonEncoderDecoder[model.ApprovalChain](),
		groupEncDec: util.NewJsonEncoderDecoder[model.ParallelApprovalGroup](),
	}
}

func documentField(documentType string, documentId string) string {
	return fmt.Sprintf("%s:%s", documentType, documentId)
}

func (s *redisApprovalStorage) SaveChain(chain model.ApprovalChain) error {
	data, err := s.chainEncDec.Encode(chain)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := s.redisClient.HSet(ctx, s.getNamespaceKey(CHAIN_KEY), chain.Id, string(data)).Err(); err != nil {
		return persistence.StorageLayerError{Err: err}
	}
	openKey := s.getNamespaceKey(CHAIN_OPEN_KEY)
	field := documentField(chain.DocumentType, chain.DocumentId)
	if chain.Status == model.APPROVAL_STATUS_PENDING {
		err = s.redisClient.HSet(ctx, openKey, field, chain.Id).Err()
	} else {
		err = s.redisClient.HDel(ctx, openKey, field).Err()
	}
	if err != nil {
		return persistence.StorageLayerError{Err: err}
	}
	return nil
}

func (s *redisApprovalStorage) GetChain(id string) (*model.ApprovalChain, error) {
	ctx := context.Background()
	val, err := s.redisClient.HGet(ctx, s.getNamespaceKey(CHAIN_KEY), id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "approval chain", Id: id}
		}
		return nil, persistence.StorageLayerError{Err: err}
	}
	return s.chainEncDec.Decode([]byte(val))
}

func (s *redisApprovalStorage) GetOpenChain(documentType string, documentId string) (*model.ApprovalChain, error) {
	ctx := context.Background()
	field := documentField(documentType, documentId)
	id, err := s.redisClient.HGet(ctx, s.getNamespaceKey(CHAIN_OPEN_KEY), field).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "open approval chain", Id: field}
		}
		return nil, persistence.StorageLayerError{Err: err}
	}
	return s.GetChain(id)
}

func (s *redisApprovalStorage) ListOpenChains() ([]model.ApprovalChain, error) {
	ctx := context.Background()
	ids, err := s.redisClient.HGetAll(ctx, s.getNamespaceKey(CHAIN_OPEN_KEY)).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Err: err}
	}
	chains := make([]model.ApprovalChain, 0, len(ids))
	for _, id := range ids {
		chain, err := s.GetChain(id)
		if err != nil {
			if _, ok := err.(persistence.NotFoundError); ok {
				continue
			}
			return nil, err
		}
		chains = append(chains, *chain)
	}
	return chains, nil
}

func (s *redisApprovalStorage) SaveGroup(group model.ParallelApprovalGroup) error {
	data, err := s.groupEncDec.Encode(group)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := s.redisClient.HSet(ctx, s.getNamespaceKey(GROUP_KEY), group.Id, string(data)).Err(); err != nil {
		return persistence.StorageLayerError{Err: err}
	}
	openKey := s.getNamespaceKey(GROUP_OPEN_KEY)
	field := documentField(group.DocumentType, group.DocumentId)
	if group.Status == model.APPROVAL_STATUS_PENDING {
		err = s.redisClient.HSet(ctx, openKey, field, group.Id).Err()
	} else {
		err = s.redisClient.HDel(ctx, openKey, field).Err()
	}
	if err != nil {
		return persistence.StorageLayerError{Err: err}
	}
	return nil
}

func (s *redisApprovalStorage) GetGroup(id string) (*model.ParallelApprovalGroup, error) {
	ctx := context.Background()
	val, err := s.redisClient.HGet(ctx, s.getNamespaceKey(GROUP_KEY), id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "approval group", Id: id}
		}
		return nil, persistence.StorageLayerError{Err: err}
	}
	return s.groupEncDec.Decode([]byte(val))
}

func (s *redisApprovalStorage) GetOpenGroup(documentType string, documentId string) (*model.ParallelApprovalGroup, error) {
	ctx := context.Background()
	field := documentField(documentType, documentId)
	id, err := s.redisClient.HGet(ctx, s.getNamespaceKey(GROUP_OPEN_KEY), field).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "open approval group", Id: field}
		}
		return nil, persistence.StorageLayerError{Err: err}
	}
	return s.GetGroup(id)
}

func (s *redisApprovalStorage) ListOpenGroups() ([]model.ParallelApprovalGroup, error) {
	ctx := context.Background()
	ids, err := s.redisClient.HGetAll(ctx, s.getNamespaceKey(GROUP_OPEN_KEY)).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Err: err}
	}
	groups := make([]model.ParallelApprovalGroup, 0, len(ids))
	for _, id := range ids {
		group, err := s.GetGroup(id)
		if err != nil {
			if _, ok := err.(persistence.NotFoundError); ok {
				continue
			}
			return nil, err
		}
		groups = append(groups, *group)
	}
	return groups, nil
}
