// Package config layers configuration for pharmabot. Precedence, highest
// first: process environment, .env files, YAML file, package defaults.
//
// The YAML file is found by, in order: the --config flag, PHARMABOT_CONFIG,
// ~/.pharmabot/config.yaml, ./pharmabot.yaml. Without one the system runs
// from env vars alone.
//
// Every leaf field of Config carries an env tag naming the variable it feeds.
// Load copies non-zero YAML values into those variables when they are unset;
// the packages then read their own env.
package config

// Config is the YAML document.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	History   HistoryConfig   `yaml:"history"`
	Session   SessionConfig   `yaml:"session"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ModelConfig selects the chat model. Per-backend credentials live in the
// nested sections; prefer the env vars for keys.
type ModelConfig struct {
	Provider    string  `yaml:"provider" env:"MODEL_PROVIDER"`
	MaxTokens   int     `yaml:"max_tokens" env:"MODEL_MAX_TOKENS"`
	Temperature float32 `yaml:"temperature" env:"MODEL_TEMPERATURE"`

	Ollama OllamaConfig `yaml:"ollama"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Azure  AzureConfig  `yaml:"azure"`
	Gemini GeminiConfig `yaml:"gemini"`
	Ark    ArkConfig    `yaml:"ark"`
}

type OllamaConfig struct {
	Host  string `yaml:"host" env:"OLLAMA_HOST"`
	Model string `yaml:"model" env:"OLLAMA_MODEL"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key" env:"OPENAI_API_KEY"`
	Model   string `yaml:"model" env:"OPENAI_MODEL"`
	BaseURL string `yaml:"base_url" env:"OPENAI_BASE_URL"`
}

type AzureConfig struct {
	APIKey     string `yaml:"api_key" env:"AZURE_OPENAI_API_KEY"`
	Endpoint   string `yaml:"endpoint" env:"AZURE_OPENAI_ENDPOINT"`
	Deployment string `yaml:"deployment" env:"AZURE_OPENAI_DEPLOYMENT"`
	APIVersion string `yaml:"api_version" env:"AZURE_OPENAI_API_VERSION"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key" env:"GOOGLE_API_KEY"`
	Model  string `yaml:"model" env:"GEMINI_MODEL"`
}

// ArkConfig is Volcengine Ark. Model is an endpoint or model ID.
type ArkConfig struct {
	APIKey  string `yaml:"api_key" env:"ARK_API_KEY"`
	Model   string `yaml:"model" env:"ARK_MODEL"`
	BaseURL string `yaml:"base_url" env:"ARK_BASE_URL"`
}

// EmbeddingConfig selects the embedding backend: local, ollama, openai,
// azure or gemini.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" env:"EMBEDDING_PROVIDER"`
	Model      string `yaml:"model" env:"EMBEDDING_MODEL"`
	Dimensions int    `yaml:"dimensions" env:"EMBEDDING_DIMENSIONS"`
	APIKey     string `yaml:"api_key" env:"EMBEDDING_API_KEY"`
	Endpoint   string `yaml:"endpoint" env:"EMBEDDING_ENDPOINT"`
}

// IndexConfig picks memory (built at startup) or qdrant (filled by ingest).
type IndexConfig struct {
	Backend string `yaml:"backend" env:"PHARMABOT_INDEX"`
}

type QdrantConfig struct {
	Host       string `yaml:"host" env:"QDRANT_HOST"`
	Port       int    `yaml:"port" env:"QDRANT_PORT"`
	Collection string `yaml:"collection" env:"QDRANT_COLLECTION"`
	APIKey     string `yaml:"api_key" env:"QDRANT_API_KEY"`
	TLS        bool   `yaml:"tls" env:"QDRANT_TLS"`
}

// CorpusConfig lists the knowledge base files or URLs and how they are cut.
// Sizes are in characters.
type CorpusConfig struct {
	Paths        []string `yaml:"paths" env:"PHARMABOT_CORPUS"`
	ChunkSize    int      `yaml:"chunk_size" env:"PHARMABOT_CHUNK_SIZE"`
	ChunkOverlap int      `yaml:"chunk_overlap" env:"PHARMABOT_CHUNK_OVERLAP"`
	MaxChunks    int      `yaml:"max_chunks" env:"PHARMABOT_MAX_CHUNKS"`
}

// RetrievalConfig tunes retrieval and fusion. TopK is per retriever, TopN is
// what reaches the prompt after fusion.
type RetrievalConfig struct {
	TopK             int     `yaml:"top_k" env:"PHARMABOT_TOP_K"`
	Hybrid           bool    `yaml:"hybrid" env:"PHARMABOT_HYBRID"`
	RRFK             float64 `yaml:"rrf_k" env:"PHARMABOT_RRF_K"`
	TopN             int     `yaml:"top_n" env:"PHARMABOT_TOP_N"`
	MaxContextTokens int     `yaml:"max_context_tokens" env:"PHARMABOT_MAX_CONTEXT_TOKENS"`
}

type ServerConfig struct {
	Host      string  `yaml:"host" env:"PHARMABOT_HOST"`
	Port      int     `yaml:"port" env:"PHARMABOT_PORT"`
	APIKey    string  `yaml:"api_key" env:"PHARMABOT_API_KEY"`
	RateLimit float64 `yaml:"rate_limit" env:"PHARMABOT_RATE_LIMIT"`
	RateBurst int     `yaml:"rate_burst" env:"PHARMABOT_RATE_BURST"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
	File   string `yaml:"file" env:"LOG_FILE"`
}

// HistoryConfig chooses SQLite at DBPath, or Postgres when PostgresURL is set.
type HistoryConfig struct {
	DBPath      string `yaml:"db_path" env:"PHARMABOT_HISTORY_DB"`
	PostgresURL string `yaml:"postgres_url" env:"PHARMABOT_POSTGRES_URL"`
}

// SessionConfig keeps sessions in Redis when RedisAddr is set. TTL is a Go
// duration string.
type SessionConfig struct {
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	TTL           string `yaml:"ttl" env:"PHARMABOT_SESSION_TTL"`
}

type TracingConfig struct {
	PublicKey string `yaml:"public_key" env:"LANGFUSE_PUBLIC_KEY"`
	SecretKey string `yaml:"secret_key" env:"LANGFUSE_SECRET_KEY"`
	Host      string `yaml:"host" env:"LANGFUSE_HOST"`
}
