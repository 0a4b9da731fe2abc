package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/docpile/data/db/documents.db"
	}
	if cfg.Backend.Kind == "" {
		cfg.Backend.Kind = "embedded"
	}
	if cfg.Backend.TimeoutSeconds == 0 {
		cfg.Backend.TimeoutSeconds = 60
	}
	if cfg.Backend.RateLimit == 0 {
		cfg.Backend.RateLimit = 5
	}
	if cfg.Backend.RateBurst == 0 {
		cfg.Backend.RateBurst = 10
	}
	if cfg.Backend.IndexPath == "" {
		cfg.Backend.IndexPath = "/usr/local/var/docpile/data/indices/bleve"
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 10
	}
	if cfg.Ingest.MaxWorkers == 0 {
		cfg.Ingest.MaxWorkers = 4
	}
	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = []string{
			".pdf", ".doc", ".docx", ".txt", ".md", ".json",
			".csv", ".xls", ".xlsx", ".ppt", ".pptx",
		}
	}
	if cfg.Ingest.DefaultStore == "" {
		cfg.Ingest.DefaultStore = "documents"
	}
}
