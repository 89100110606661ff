package stores

import (
	"sparkpad-server/config"
	"sparkpad-server/core"
	"sparkpad-server/stores/aws"
	"sparkpad-server/stores/filesystem"
	"sparkpad-server/stores/memory"
	"sparkpad-server/stores/redis"
	"sparkpad-server/stores/sqlite"

	"github.com/sirupsen/logrus"
)

// Store is a union interface that includes all store types.
type Store interface {
	core.DocumentStore
	core.BlobStore
}

func GetStore(cfg config.Store) Store {
	var store Store

	storageField := logrus.Fields{
		"storageType":  cfg.Type,
		"maxRevisions": cfg.MaxRevisions,
	}

	switch cfg.Type {
	case "filesystem":
		storageField["basePath"] = cfg.Path
		store = filesystem.NewStore(cfg.Path, cfg.MaxRevisions)
	case "sqlite":
		storageField["dataSourceName"] = cfg.DSN
		store = sqlite.NewStore(cfg.DSN, cfg.MaxRevisions)
	case "s3":
		if cfg.Bucket == "" {
			logrus.Fatal("store.bucket must be set for s3 storage type")
		}
		storageField["bucketName"] = cfg.Bucket
		store = aws.NewStore(cfg.Bucket, cfg.MaxRevisions)
	case "redis":
		storageField["redisAddress"] = cfg.RedisAddress
		storageField["redisDB"] = cfg.RedisDB
		store = redis.NewStore(cfg.RedisAddress, cfg.RedisPassword, cfg.RedisDB, cfg.MaxRevisions)
	default:
		store = memory.NewStore(cfg.MaxRevisions)
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store
}
