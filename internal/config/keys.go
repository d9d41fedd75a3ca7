package config

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CLAUSELENS_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "CLAUSELENS_SERVER_MCP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MCPPort },
	},
	{
		key: "server.auth_token", typ: kString, env: "CLAUSELENS_SERVER_AUTH_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.AuthToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AuthToken },
	},
	{
		key: "server.max_upload_bytes", typ: kInt, env: "CLAUSELENS_SERVER_MAX_UPLOAD_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxUploadBytes = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxUploadBytes },
	},
	{
		key: "engine.backend", typ: kString, env: "CLAUSELENS_ENGINE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Engine.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Backend },
	},
	{
		key: "engine.ollama_base_url", typ: kString, env: "CLAUSELENS_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Engine.OllamaBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.OllamaBaseURL },
	},
	{
		key: "engine.model", typ: kString, env: "CLAUSELENS_ENGINE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Engine.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Model },
	},
	{
		key: "engine.openrouter_api_key", typ: kString, env: "CLAUSELENS_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Engine.OpenRouterKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.OpenRouterKey },
	},
	{
		key: "engine.request_timeout", typ: kString, env: "CLAUSELENS_ENGINE_REQUEST_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Engine.RequestTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.RequestTimeout },
	},
	{
		key: "analysis.chunk_size", typ: kInt, env: "CLAUSELENS_ANALYSIS_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Analysis.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Analysis.ChunkSize },
	},
	{
		key: "analysis.chunk_overlap", typ: kInt, env: "CLAUSELENS_ANALYSIS_CHUNK_OVERLAP",
		apply:   func(cfg *Config, v any) { cfg.Analysis.ChunkOverlap = v.(int) },
		extract: func(cfg Config) any { return cfg.Analysis.ChunkOverlap },
	},
	{
		key: "analysis.dedup_threshold", typ: kFloat, env: "CLAUSELENS_ANALYSIS_DEDUP_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Analysis.DedupThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Analysis.DedupThreshold },
	},
	{
		key: "analysis.max_concurrent_jobs", typ: kInt, env: "CLAUSELENS_ANALYSIS_MAX_CONCURRENT_JOBS",
		apply:   func(cfg *Config, v any) { cfg.Analysis.MaxConcurrentJobs = v.(int) },
		extract: func(cfg Config) any { return cfg.Analysis.MaxConcurrentJobs },
	},
	{
		key: "analysis.category_weights", typ: kString, env: "CLAUSELENS_ANALYSIS_CATEGORY_WEIGHTS",
		apply:   func(cfg *Config, v any) { cfg.Analysis.CategoryWeights = v.(string) },
		extract: func(cfg Config) any { return cfg.Analysis.CategoryWeights },
	},
	{
		key: "enhance.enabled", typ: kBool, env: "CLAUSELENS_ENHANCE_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Enhance.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Enhance.Enabled },
	},
	{
		key: "enhance.task_timeout", typ: kString, env: "CLAUSELENS_ENHANCE_TASK_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Enhance.TaskTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Enhance.TaskTimeout },
	},
	{
		key: "enhance.max_concurrent_tasks", typ: kInt, env: "CLAUSELENS_ENHANCE_MAX_CONCURRENT_TASKS",
		apply:   func(cfg *Config, v any) { cfg.Enhance.MaxConcurrentTasks = v.(int) },
		extract: func(cfg Config) any { return cfg.Enhance.MaxConcurrentTasks },
	},
	{
		key: "query.top_k", typ: kInt, env: "CLAUSELENS_QUERY_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Query.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Query.TopK },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CLAUSELENS_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.durable", typ: kBool, env: "CLAUSELENS_STORAGE_DURABLE",
		apply:   func(cfg *Config, v any) { cfg.Storage.Durable = v.(bool) },
		extract: func(cfg Config) any { return cfg.Storage.Durable },
	},
	{
		key: "log.level", typ: kString, env: "CLAUSELENS_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}
