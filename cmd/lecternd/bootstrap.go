package main

import (
	"log/slog"

	"lectern/internal/audio"
	"lectern/internal/catalog"
	"lectern/internal/config"
	"lectern/internal/content"
	"lectern/internal/daemon"
	"lectern/internal/events"
	"lectern/internal/services/llm"
	"lectern/internal/storage"
	"lectern/internal/transcription"
	"lectern/internal/workflow"
)

const eventHistory = 500

// bootstrap opens the catalog and wires every service into a daemon that has
// not been started yet. The catalog is closed on failure.
func bootstrap(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	client, err := llm.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	objects, err := storage.New(cfg)
	if err != nil {
		return nil, err
	}
	store, err := catalog.Open(cfg)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(eventHistory, logger)
	validator := audio.NewValidator(cfg.Audio.MaxFileBytes, cfg.Audio.Extensions)
	orchestrator := transcription.NewOrchestrator(objects, validator, client, cfg.Paths.ScratchDir, logger)
	generator := content.NewService(client, content.OptionsFromConfig(cfg), logger)
	coordinator := workflow.NewCoordinator(cfg, store, bus, orchestrator, generator, logger)

	d, err := daemon.New(cfg, store, objects, bus, coordinator, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return d, nil
}
