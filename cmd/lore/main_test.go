package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func findCommand(t *testing.T, app *cli.App, name string) *cli.Command {
	t.Helper()
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not found", name)
	return nil
}

func TestCommandsRequireCollection(t *testing.T) {
	for _, name := range []string{"add", "ingest", "query", "reembed", "status", "enqueue"} {
		t.Run(name, func(t *testing.T) {
			app := newApp()
			app.Writer = &bytes.Buffer{}
			app.ErrWriter = &bytes.Buffer{}

			err := app.Run([]string{"lore", name})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "collection")
		})
	}
}

func TestReembedCommandFlags(t *testing.T) {
	cmd := findCommand(t, newApp(), "reembed")

	var batchFlag *cli.IntFlag
	for _, flag := range cmd.Flags {
		if f, ok := flag.(*cli.IntFlag); ok && f.Name == "batch-size" {
			batchFlag = f
			break
		}
	}
	require.NotNil(t, batchFlag)
	assert.Equal(t, 20, batchFlag.Value)
}

func TestToIDs(t *testing.T) {
	ids := toIDs([]string{"a", " ", " b "})
	require.Len(t, ids, 2)
	assert.Equal(t, "a", string(ids[0]))
	assert.Equal(t, "b", string(ids[1]))
}

func TestSetupLogger(t *testing.T) {
	newTestApp := func() *cli.App {
		return &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "log-level",
					Aliases: []string{"l"},
					Value:   "info",
				},
				&cli.StringFlag{
					Name:  "log-format",
					Value: "text",
				},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error {
				return nil
			},
		}
	}

	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "DEBUG", "WaRn"} {
			t.Run(level, func(t *testing.T) {
				require.NoError(t, newTestApp().Run([]string{"test", "--log-level", level}))
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		err := newTestApp().Run([]string{"test", "--log-level", "invalid"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("json format", func(t *testing.T) {
		require.NoError(t, newTestApp().Run([]string{"test", "--log-format", "json"}))
	})

	t.Run("invalid format returns error", func(t *testing.T) {
		err := newTestApp().Run([]string{"test", "--log-format", "xml"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log format")
	})

	t.Run("log-level flag has alias -l", func(t *testing.T) {
		require.NoError(t, newTestApp().Run([]string{"test", "-l", "debug"}))
	})
}

// writeConfig points a mock-provider configuration at a fresh data directory.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "lore.yaml")
	content := fmt.Sprintf(`data_dir: %s
ai:
  provider: mock
  dimensions: 16
cache:
  backend: none
log:
  level: error
`, filepath.Join(dir, "data"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"lore", "--config", configPath, "--env-file", ""}, args...))
	return out.String(), err
}

func TestEndToEnd(t *testing.T) {
	configPath := writeConfig(t)
	text := "Mitochondria produce most of the chemical energy needed by the cell."
	source := filepath.Join(t.TempDir(), "cells.txt")
	require.NoError(t, os.WriteFile(source, []byte(text), 0o644))

	out, err := run(t, configPath, "add", "--collection", "bio", "--name", "Cells", source)
	require.NoError(t, err, out)
	assert.Contains(t, out, source)

	out, err = run(t, configPath, "ingest", "--collection", "bio")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Ingested 1 of 1 documents")

	out, err = run(t, configPath, "ingest", "--collection", "bio")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Nothing to ingest")

	out, err = run(t, configPath, "status", "--collection", "bio")
	require.NoError(t, err, out)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "Vectors: 1")

	out, err = run(t, configPath, "query", "--collection", "bio", text)
	require.NoError(t, err, out)
	assert.Contains(t, out, "[1] Cells")

	out, err = run(t, configPath, "query", "--collection", "bio", "--json", text)
	require.NoError(t, err, out)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "{"), out)
}

func TestIngest_FailuresExitNonZero(t *testing.T) {
	configPath := writeConfig(t)

	out, err := run(t, configPath, "add", "--collection", "bio", filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err, out)

	out, err = run(t, configPath, "ingest", "--collection", "bio")
	require.Error(t, err)
	assert.Contains(t, out, "failed")
}

func TestQuery_RequiresQuestion(t *testing.T) {
	_, err := run(t, writeConfig(t), "query", "--collection", "bio")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "question")
}
