package api

import (
	"net/http"
	"time"

	"github.com/docuvec/embedq/internal/api/shared"
	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/queue"
)

// ConfigHandler serves the queue configuration routes.
type ConfigHandler struct {
	config *queue.ConfigCache
}

// NewConfigHandler creates a ConfigHandler.
func NewConfigHandler(config *queue.ConfigCache) *ConfigHandler {
	return &ConfigHandler{config: config}
}

// ConfigResponse is the wire form of the queue configuration. Durations
// travel as integer milliseconds.
type ConfigResponse struct {
	BatchSize            int       `json:"batch_size"`
	MaxConcurrentWorkers int       `json:"max_concurrent_workers"`
	QueueEnabled         bool      `json:"queue_enabled"`
	BaseRetryDelayMs     int64     `json:"base_retry_delay_ms"`
	MaxRetryDelayMs      int64     `json:"max_retry_delay_ms"`
	BackoffMultiplier    float64   `json:"backoff_multiplier"`
	JitterFraction       float64   `json:"jitter_fraction"`
	StaleWorkerMs        int64     `json:"stale_worker_threshold_ms"`
	ProcessingTimeoutMs  int64     `json:"processing_timeout_ms"`
	RetentionHours       int64     `json:"retention_hours"`
	DefaultCooldownMs    int64     `json:"default_cooldown_ms"`
	Strategy             string    `json:"strategy"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// ConfigPatch carries a partial configuration update. Nil fields keep
// their current values; the merged result is validated as a whole before
// anything is persisted.
type ConfigPatch struct {
	BatchSize            *int     `json:"batch_size"`
	MaxConcurrentWorkers *int     `json:"max_concurrent_workers"`
	QueueEnabled         *bool    `json:"queue_enabled"`
	BaseRetryDelayMs     *int64   `json:"base_retry_delay_ms"`
	MaxRetryDelayMs      *int64   `json:"max_retry_delay_ms"`
	BackoffMultiplier    *float64 `json:"backoff_multiplier"`
	JitterFraction       *float64 `json:"jitter_fraction"`
	StaleWorkerMs        *int64   `json:"stale_worker_threshold_ms"`
	ProcessingTimeoutMs  *int64   `json:"processing_timeout_ms"`
	RetentionHours       *int64   `json:"retention_hours"`
	DefaultCooldownMs    *int64   `json:"default_cooldown_ms"`
	Strategy             *string  `json:"strategy"`
}

// GetConfig handles GET /api/config.
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, toConfigResponse(h.config.Snapshot()))
}

// UpdateConfig handles PATCH /api/config. An invalid merged
// configuration is rejected and the previous one stays active.
func (h *ConfigHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch ConfigPatch
	if err := shared.DecodeJSON(r, &patch); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	cfg := h.config.Snapshot()
	applyPatch(&cfg, patch)

	if err := h.config.Update(r.Context(), cfg); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, toConfigResponse(h.config.Snapshot()))
}

func applyPatch(cfg *domain.QueueConfig, patch ConfigPatch) {
	if patch.BatchSize != nil {
		cfg.BatchSize = *patch.BatchSize
	}
	if patch.MaxConcurrentWorkers != nil {
		cfg.MaxConcurrentWorkers = *patch.MaxConcurrentWorkers
	}
	if patch.QueueEnabled != nil {
		cfg.QueueEnabled = *patch.QueueEnabled
	}
	if patch.BaseRetryDelayMs != nil {
		cfg.BaseRetryDelay = time.Duration(*patch.BaseRetryDelayMs) * time.Millisecond
	}
	if patch.MaxRetryDelayMs != nil {
		cfg.MaxRetryDelay = time.Duration(*patch.MaxRetryDelayMs) * time.Millisecond
	}
	if patch.BackoffMultiplier != nil {
		cfg.BackoffMultiplier = *patch.BackoffMultiplier
	}
	if patch.JitterFraction != nil {
		cfg.JitterFraction = *patch.JitterFraction
	}
	if patch.StaleWorkerMs != nil {
		cfg.StaleWorkerThreshold = time.Duration(*patch.StaleWorkerMs) * time.Millisecond
	}
	if patch.ProcessingTimeoutMs != nil {
		cfg.ProcessingTimeout = time.Duration(*patch.ProcessingTimeoutMs) * time.Millisecond
	}
	if patch.RetentionHours != nil {
		cfg.RetentionPeriod = time.Duration(*patch.RetentionHours) * time.Hour
	}
	if patch.DefaultCooldownMs != nil {
		cfg.DefaultCooldown = time.Duration(*patch.DefaultCooldownMs) * time.Millisecond
	}
	if patch.Strategy != nil {
		cfg.Strategy = domain.Strategy(*patch.Strategy)
	}
}

func toConfigResponse(cfg domain.QueueConfig) ConfigResponse {
	return ConfigResponse{
		BatchSize:            cfg.BatchSize,
		MaxConcurrentWorkers: cfg.MaxConcurrentWorkers,
		QueueEnabled:         cfg.QueueEnabled,
		BaseRetryDelayMs:     cfg.BaseRetryDelay.Milliseconds(),
		MaxRetryDelayMs:      cfg.MaxRetryDelay.Milliseconds(),
		BackoffMultiplier:    cfg.BackoffMultiplier,
		JitterFraction:       cfg.JitterFraction,
		StaleWorkerMs:        cfg.StaleWorkerThreshold.Milliseconds(),
		ProcessingTimeoutMs:  cfg.ProcessingTimeout.Milliseconds(),
		RetentionHours:       int64(cfg.RetentionPeriod.Hours()),
		DefaultCooldownMs:    cfg.DefaultCooldown.Milliseconds(),
		Strategy:             string(cfg.Strategy),
		UpdatedAt:            cfg.UpdatedAt,
	}
}
