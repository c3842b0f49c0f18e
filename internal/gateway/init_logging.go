package gateway

import (
	"strings"
	"time"

	"github.com/elon-ai/dialogue-gateway/internal/completion"
	"github.com/elon-ai/dialogue-gateway/internal/config"
	"github.com/elon-ai/dialogue-gateway/internal/monitoring"
	"github.com/elon-ai/dialogue-gateway/internal/utils"
)

func buildInitEvent(cfg *config.Config, provider completion.Provider) *monitoring.InitEvent {
	ev := &monitoring.InitEvent{
		Timestamp:            time.Now(),
		Event:                "gateway_init",
		Version:              config.ServiceVersion,
		ServerPort:           cfg.Server.Port,
		ServerReadTimeoutMs:  cfg.Server.ReadTimeout.Milliseconds(),
		ServerWriteTimeoutMs: cfg.Server.WriteTimeout.Milliseconds(),
		ProviderTimeoutMs:    cfg.Provider.Timeout.Milliseconds(),
		ClientRateLimit:      cfg.Server.ClientRateLimit,
		PromptsDir:           cfg.Prompts.Dir,
		PromptsWatch:         cfg.Prompts.Watch,
		TelemetryPath:        cfg.Monitoring.TelemetryPath,
		Limits: map[string]int{
			"per_minute":     cfg.Usage.PerMinute,
			"per_hour":       cfg.Usage.PerHour,
			"per_day":        cfg.Usage.PerDay,
			"tokens_per_day": cfg.Usage.TokensPerDay,
		},
	}

	key := strings.TrimSpace(cfg.Provider.APIKey)
	ev.Provider = monitoring.InitProvider{
		Name:      provider.Name(),
		Model:     provider.Model(),
		Endpoint:  cfg.Provider.BaseURL,
		HasAPIKey: key != "",
	}
	if key != "" {
		ev.Provider.KeyHint = utils.MaskKeyShort(key)
	}

	return ev
}
