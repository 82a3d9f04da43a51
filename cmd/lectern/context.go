package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"lectern/internal/api"
	"lectern/internal/catalog"
	"lectern/internal/config"
	"lectern/internal/events"
	"lectern/internal/logging"
	"lectern/internal/storage"
	"lectern/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	store   *catalog.Store
	jobs    *api.JobService
	unwatch func()
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// jobService opens the catalog and object store on first use. Upload events
// published by the service are turned into pending jobs on a private bus.
func (c *commandContext) jobService() (*api.JobService, error) {
	if c.jobs != nil {
		return c.jobs, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := catalog.Open(cfg)
	if err != nil {
		return nil, err
	}
	objects, err := storage.New(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	logger := logging.NewNop()
	bus := events.NewBus(0, logger)
	c.store = store
	c.unwatch = workflow.NewTriggers(store, logger, nil).Attach(bus)
	c.jobs = api.NewJobService(store, objects, bus, cfg.Storage.Bucket, cfg.SignedURLTTL(), logger)
	return c.jobs, nil
}

func (c *commandContext) catalogStore() (*catalog.Store, error) {
	if _, err := c.jobService(); err != nil {
		return nil, err
	}
	return c.store, nil
}

func (c *commandContext) close() {
	if c.unwatch != nil {
		c.unwatch()
		c.unwatch = nil
	}
	if c.store != nil {
		_ = c.store.Close()
		c.store = nil
		c.jobs = nil
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
