package config

const (
	StoreBackendMemory = "memory"
	StoreBackendRedis  = "redis"
	StoreBackendMongo  = "mongo"
)

type StoreConfig interface {
	GetStoreBackend() string
	GetRedisURL() string
	GetRedisKeyPrefix() string
	GetMongoURI() string
	GetMongoDatabase() string
	GetMongoCollection() string
}

type Store struct{}

var _ StoreConfig = Store{}

func (Store) GetStoreBackend() string {
	return GetEnv("STORE_BACKEND", StoreBackendMemory)
}

func (Store) GetRedisURL() string {
	return GetEnv("REDIS_URL", "redis://localhost:6379/0")
}

func (Store) GetRedisKeyPrefix() string {
	return GetEnv("REDIS_KEY_PREFIX", "agentauth:")
}

func (Store) GetMongoURI() string {
	return GetEnv("MONGODB_URI", "mongodb://localhost:27017")
}

func (Store) GetMongoDatabase() string {
	return GetEnv("MONGODB_DATABASE", "agentauth")
}

func (Store) GetMongoCollection() string {
	return GetEnv("MONGODB_COLLECTION", "records")
}
