package config

import "time"

// Registry holds configuration for the tile registry service (C1).
type Registry struct {
	Port           string
	DatabaseURL    string
	MigrationsPath string
}

// LoadRegistry reads REGISTRY_* environment variables with defaults.
func LoadRegistry() *Registry {
	return &Registry{
		Port:           getEnv("REGISTRY_PORT", "8081"),
		DatabaseURL:    getEnv("REGISTRY_DATABASE_URL", getEnv("DATABASE_URL", "")),
		MigrationsPath: getEnv("REGISTRY_MIGRATIONS_PATH", "./migrations/registry"),
	}
}

// Vector holds configuration for the vector index service (C3).
type Vector struct {
	Port           string
	DatabaseURL    string
	MigrationsPath string
	DefaultDim     int
}

// LoadVector reads VECTOR_* environment variables with defaults.
func LoadVector() *Vector {
	return &Vector{
		Port:           getEnv("VECTOR_PORT", "8082"),
		DatabaseURL:    getEnv("VECTOR_DATABASE_URL", getEnv("DATABASE_URL", "")),
		MigrationsPath: getEnv("VECTOR_MIGRATIONS_PATH", "./migrations/vector"),
		DefaultDim:     getEnvInt("VECTOR_DEFAULT_DIM", 768),
	}
}

// Scheduler holds configuration for the scheduler process (C4).
type Scheduler struct {
	RegistryURL    string
	BusURL         string
	Interval       time.Duration
	BatchSize      int
	ReadyStatus    string
	QueueRouting   string
	RoutingFile    string
	TTLSweepTaskQ  string
	TemporalAddr   string
	TemporalNS     string
}

// LoadScheduler reads SCHEDULER_* environment variables with defaults.
func LoadScheduler() *Scheduler {
	return &Scheduler{
		RegistryURL:   getEnv("SCHEDULER_REGISTRY_URL", "http://localhost:8081"),
		BusURL:        getEnv("SCHEDULER_BUS_URL", "nats://localhost:4222"),
		Interval:      getEnvDuration("SCHEDULER_INTERVAL", 5*time.Second),
		BatchSize:     getEnvInt("SCHEDULER_BATCH_SIZE", 256),
		ReadyStatus:   getEnv("SCHEDULER_READY_STATUS", "READY_FOR_INDEXING"),
		QueueRouting:  getEnv("SCHEDULER_QUEUE_ROUTING", ""),
		RoutingFile:   getEnv("SCHEDULER_ROUTING_FILE", ""),
		TTLSweepTaskQ: getEnv("SCHEDULER_MAINTENANCE_TASK_QUEUE", "tileindex-maintenance"),
		TemporalAddr:  getEnv("TEMPORAL_ADDRESS", "127.0.0.1:7233"),
		TemporalNS:    getEnv("TEMPORAL_NAMESPACE", "default"),
	}
}

// Worker holds configuration for the embedder worker process (C5).
type Worker struct {
	RegistryURL             string
	VectorURL               string
	BusURL                  string
	ConsumeQueues           string
	ConsumeStyle            string
	DecodeWorkers           int
	BatchSize               int
	FlushInterval           time.Duration
	PrefetchCount           int
	JobTimeout              time.Duration
	ShutdownTimeout         time.Duration
	EmbeddingProvider       string
	EmbedDim                int
	RequireIndexBeforeAck   bool
}

// LoadWorker reads WORKER_* environment variables with defaults.
func LoadWorker() *Worker {
	return &Worker{
		RegistryURL:           getEnv("WORKER_REGISTRY_URL", "http://localhost:8081"),
		VectorURL:             getEnv("WORKER_VECTOR_URL", "http://localhost:8082"),
		BusURL:                getEnv("WORKER_BUS_URL", "nats://localhost:4222"),
		ConsumeQueues:         getEnv("WORKER_CONSUME_QUEUES", "tiles.to_index.default"),
		ConsumeStyle:          getEnv("WORKER_CONSUME_STYLE", "callback"),
		DecodeWorkers:         getEnvInt("WORKER_DECODE_WORKERS", 8),
		BatchSize:             getEnvInt("WORKER_BATCH_SIZE", 64),
		FlushInterval:         getEnvDuration("WORKER_FLUSH_INTERVAL", 2*time.Second),
		PrefetchCount:         getEnvInt("WORKER_PREFETCH_COUNT", 512),
		JobTimeout:            getEnvDuration("WORKER_JOB_TIMEOUT", 30*time.Second),
		ShutdownTimeout:       getEnvDuration("WORKER_SHUTDOWN_TIMEOUT", 15*time.Second),
		EmbeddingProvider:     getEnv("EMBEDDING_PROVIDER", "local"),
		EmbedDim:              getEnvInt("EMBED_DIM", 768),
		RequireIndexBeforeAck: getEnvBool("WORKER_REQUIRE_INDEX_STATUS_BEFORE_ACK", false),
	}
}

// Retriever holds configuration for the retriever service (C6).
type Retriever struct {
	Port              string
	VectorURL         string
	EmbeddingProvider string
	EmbedDim          int
}

// LoadRetriever reads RETRIEVER_* environment variables with defaults.
func LoadRetriever() *Retriever {
	return &Retriever{
		Port:              getEnv("RETRIEVER_PORT", "8083"),
		VectorURL:         getEnv("RETRIEVER_VECTOR_URL", "http://localhost:8082"),
		EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "local"),
		EmbedDim:          getEnvInt("EMBED_DIM", 768),
	}
}

// Maintenance holds configuration for the Temporal-driven TTL sweep worker (C9).
type Maintenance struct {
	TemporalAddr string
	TemporalNS   string
	TaskQueue    string
	RegistryURL  string
	VectorURL    string
	TTL          time.Duration
	SweepEvery   time.Duration
}

// LoadMaintenance reads MAINTENANCE_* environment variables with defaults.
func LoadMaintenance() *Maintenance {
	return &Maintenance{
		TemporalAddr: getEnv("TEMPORAL_ADDRESS", "127.0.0.1:7233"),
		TemporalNS:   getEnv("TEMPORAL_NAMESPACE", "default"),
		TaskQueue:    getEnv("MAINTENANCE_TASK_QUEUE", "tileindex-maintenance"),
		RegistryURL:  getEnv("MAINTENANCE_REGISTRY_URL", "http://localhost:8081"),
		VectorURL:    getEnv("MAINTENANCE_VECTOR_URL", "http://localhost:8082"),
		TTL:          getEnvDuration("MAINTENANCE_TTL", 30*24*time.Hour),
		SweepEvery:   getEnvDuration("MAINTENANCE_SWEEP_INTERVAL", 1*time.Hour),
	}
}
