// Package config loads the Nexus Health configuration tree.
//
// Values are resolved in three layers: Default(), an optional YAML file and
// environment variables. ${VAR} references inside the YAML file are expanded
// before parsing, and the merged result is checked with validator struct tags.
//
//	cfg, err := config.Load(os.Getenv("NEXUS_CONFIG"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Orchestrator.Endpoints)
//
// # Environment Overrides
//
//   - LOG_LEVEL, ENVIRONMENT, SERVICE_VERSION, JAEGER_ENDPOINT
//   - NEXUS_LLM_PROVIDER, NEXUS_LLM_MODEL, NEXUS_LLM_BASE_URL, NEXUS_LLM_TIMEOUT
//   - OPENAI_API_KEY, GCP_PROJECT, GCP_LOCATION
//   - NEXUS_EMBEDDING_PROVIDER, NEXUS_EMBEDDING_MODEL, NEXUS_EMBEDDING_BASE_URL
//   - NEXUS_DB_DIR, NEXUS_SOURCE_DIR, NEXUS_RAG_TOP_K, NEXUS_EXPOSE_DOCUMENTS
//   - HOSPITAL_ADDR, HOSPITAL_HEALTH_PORT, INSURER_ADDR, INSURER_HEALTH_PORT
//   - DOCTORS_DATA_URL, NEXUS_SEARCH_BACKEND, SEARXNG_URL
//   - NEXUS_ENDPOINTS (comma separated), NEXUS_TIMEOUT, NEXUS_MAX_ITERATIONS,
//     NEXUS_MAX_TOOL_CALLS, NEXUS_HISTORY_PATH
//
// Malformed numeric, boolean or duration overrides are ignored and the
// previous value is kept.
package config
