package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"plotline/internal/api"
	"plotline/internal/config"
)

type commandContext struct {
	configFlag *string
	apiFlag    *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, apiFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) apiBaseURL() string {
	if c.apiFlag != nil {
		if value := strings.TrimSpace(*c.apiFlag); value != "" {
			return value
		}
	}
	if cfg, err := c.ensureConfig(); err == nil && cfg != nil {
		return cfg.APIBaseURL()
	}
	defaults := config.Default()
	return defaults.APIBaseURL()
}

func (c *commandContext) client() *api.Client {
	var token string
	if cfg, err := c.ensureConfig(); err == nil && cfg != nil {
		token = cfg.Paths.APIToken
	}
	return api.NewClient(c.apiBaseURL(), api.WithToken(token))
}

// withClient runs fn and rewrites transport failures into a hint to start
// the daemon.
func (c *commandContext) withClient(fn func(*api.Client) error) error {
	err := fn(c.client())
	if errors.Is(err, api.ErrDaemonUnavailable) {
		return fmt.Errorf("connect to daemon at %s: not reachable; start it with `plotline serve`", c.apiBaseURL())
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
