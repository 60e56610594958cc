package config

import "time"

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"

type Config struct {
	RedisConfig   RedisStorageConfig
	HttpPort      int
	StorageType   StorageType
	EngineConfig  EngineConfig
	SlaConfig     SlaConfig
	ActionTimeout time.Duration
	AuditLogFile  string
	BusCapacity   int
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
}

type EngineConfig struct {
	Partitions        int
	Capacity          int
	StopScope         string
	MaxConditionDepth int
}

type SlaConfig struct {
	SweepInterval time.Duration
	DedupeWindow  time.Duration
}
