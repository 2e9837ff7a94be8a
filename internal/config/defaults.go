package config

import "github.com/spf13/viper"

const (
	DefaultAttachmentExtensions = "md,txt,pdf"
	DefaultRetryStatusCodes     = "413,429,502,503,504"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("target_backend", "openwebui")

	v.SetDefault("openwebui.url", "")
	v.SetDefault("openwebui.api_key", "")
	v.SetDefault("notion.api_key", "")
	v.SetDefault("notion.parent_page_id", "")

	v.SetDefault("confluence.url", "")
	v.SetDefault("confluence.username", "")
	v.SetDefault("confluence.api_token", "")
	v.SetDefault("confluence.pat", "")

	v.SetDefault("export.output_path", ".")
	v.SetDefault("export.attachment_extensions", DefaultAttachmentExtensions)
	v.SetDefault("export.max_attachment_size_mb", 0)
	v.SetDefault("export.batch_add", true)
	v.SetDefault("export.concurrency", 1)
	v.SetDefault("export.search_limit", 100)

	v.SetDefault("retry.backoff_factor", 2.0)
	v.SetDefault("retry.max_backoff_seconds", 60)
	v.SetDefault("retry.max_retries", 5)
	v.SetDefault("retry.status_codes", DefaultRetryStatusCodes)

	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.rate_limit", 0)

	v.SetDefault("circuit_breaker.enabled", true)
	v.SetDefault("history.db", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}
