package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"lockwatch/internal/config"
	"lockwatch/internal/journal"
	"lockwatch/internal/qumulo"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	// exitCode carries a non-error process exit status (the verify
	// command exits with the classification code).
	exitCode int
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
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) clusterClient() (*qumulo.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return qumulo.NewClient(cfg.ClusterConfig()), nil
}

func (c *commandContext) openJournal() (*journal.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return journal.Open(cfg.Paths.JournalPath)
}

// parseFileRef accepts either a numeric file id or an absolute cluster path.
func parseFileRef(arg string) (qumulo.FileRef, error) {
	arg = strings.TrimSpace(arg)
	if id, err := strconv.ParseUint(arg, 10, 64); err == nil && id > 0 {
		return qumulo.RefByID(id), nil
	}
	if strings.HasPrefix(arg, "/") {
		return qumulo.RefByPath(arg), nil
	}
	return qumulo.FileRef{}, fmt.Errorf("file reference %q must be a numeric id or an absolute path", arg)
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

// writeJSON renders the --json form of a command's output: indented,
// trailing newline, straight to the given writer.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
