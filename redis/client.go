package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/bsm/redislock"
	jsonpatch "github.com/evanphx/json-patch"
	"github.com/go-redis/redis/v8"
	"github.com/kelseyhightower/envconfig"
	"time"
)

type DB int
type ReleaseLock func() error

type Client struct {
	client         redis.UniversalClient
	lockExpiration time.Duration
}

var ctx = context.Background()

type Config struct {
	LockExpirationSeconds   int     `envconfig:"MDL_COMN_REDIS_LOCK_EXPIRATION" default:"3"`
	Host                    string  `envconfig:"MDL_COMN_REDIS_HOST" required:"true"`
	Port                    string  `envconfig:"MDL_COMN_REDIS_PORT" required:"true"`
	HASentinelPort          string  `envconfig:"MDL_COMN_REDIS_HA_SENTINEL_PORT" default:"26379"`
	HASentinelMasterName    string  `envconfig:"MDL_COMN_REDIS_HA_MASTER_NAME" default:"mymaster"`
	Password                string  `envconfig:"MDL_COMN_REDIS_AUTH_PASSWORD" default:"0"`
	AuthRequired            bool    `envconfig:"MDL_COMN_REDIS_AUTH_REQUIRED" default:"false"`
	HAMode                  bool    `envconfig:"MDL_COMN_REDIS_HA_MODE" default:"false"`
	HASentinelSocketTimeout float32 `envconfig:"MDL_COMN_REDIS_SOCKET_TIMEOUT" default:"0.5"`
}

func NewClient(db DB) (Client, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Client{}, err
	}
	var client redis.UniversalClient
	if cfg.HAMode {
		client = newFailoverClient(cfg, db)
	} else {
		client = newClient(cfg, db)
	}
	return Client{
		client:         client,
		lockExpiration: time.Duration(cfg.LockExpirationSeconds) * time.Second,
	}, nil
}

func newFailoverClient(cfg Config, db DB) *redis.ClusterClient {
	timeout := time.Duration(float64(cfg.HASentinelSocketTimeout) * float64(time.Second))
	options := redis.FailoverOptions{
		SentinelAddrs: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.HASentinelPort)},
		ReadTimeout:   timeout,
		WriteTimeout:  timeout,
		MaxRetries:    6,
		DB:            int(db),
		MasterName:    cfg.HASentinelMasterName,
	}
	if cfg.AuthRequired {
		options.Password = cfg.Password
	}
	return redis.NewFailoverClusterClient(&options)
}

func newClient(cfg Config, db DB) *redis.Client {
	options := redis.Options{
		Addr:       fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		MaxRetries: 6,
		DB:         int(db),
	}
	if cfg.AuthRequired {
		options.Password = cfg.Password
	}
	return redis.NewClient(&options)
}

// GetDocument decodes the JSON document stored at redisKey into doc.
// Fields that doc does not declare are ignored.
func (client *Client) GetDocument(redisKey string, doc interface{}) error {
	raw, err := client.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", redisKey, err)
	}
	if err = json.Unmarshal(raw, doc); err != nil {
		return fmt.Errorf("failed to decode %s: %w", redisKey, err)
	}
	return nil
}

// UpdateDocument applies update to the typed view of the document under a
// lock and merges the result back, so fields owned by other workers survive.
func (client *Client) UpdateDocument(redisKey string, doc interface{}, update func()) (err error) {
	releaseLock, err := client.Lock(redisKey)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := releaseLock(); err == nil {
			err = releaseErr
		}
	}()

	raw, err := client.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", redisKey, err)
	}
	merged, err := mergeDocument(raw, doc, update)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", redisKey, err)
	}
	return client.client.Set(ctx, redisKey, merged, 0).Err()
}

func mergeDocument(raw []byte, doc interface{}, update func()) ([]byte, error) {
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, err
	}
	update()
	patch, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	merged, err := jsonpatch.MergePatch(raw, patch)
	if err != nil {
		return nil, err
	}

	// A merge patch deletes keys whose value is null, but readers of the
	// document expect them written out as null.
	var patchFields, mergedFields map[string]interface{}
	if err = json.Unmarshal(patch, &patchFields); err != nil {
		return nil, err
	}
	if err = json.Unmarshal(merged, &mergedFields); err != nil {
		return nil, err
	}
	restoreNulls(mergedFields, patchFields)
	return json.Marshal(mergedFields)
}

func restoreNulls(dst map[string]interface{}, patch map[string]interface{}) {
	for key, value := range patch {
		switch value := value.(type) {
		case nil:
			dst[key] = nil
		case map[string]interface{}:
			if child, ok := dst[key].(map[string]interface{}); ok {
				restoreNulls(child, value)
			}
		}
	}
}

func (client *Client) Lock(redisKey string) (ReleaseLock, error) {
	lockCl := redislock.New(client.client)
	str := redislock.LimitRetry(redislock.LinearBackoff(time.Second), 20)
	lockKey := fmt.Sprintf("lock:%s", redisKey)
	lock, err := lockCl.Obtain(ctx, lockKey, client.lockExpiration, &redislock.Options{RetryStrategy: str})
	if err != nil {
		return nil, err
	}
	return func() error {
		return lock.Release(ctx)
	}, nil
}

func (client *Client) Close() error {
	return client.client.Close()
}
