package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/docingest/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadSources(t *testing.T) {
	t.Run("plain headers", func(t *testing.T) {
		sources, err := readSources(strings.NewReader("url,code\nhttps://example.com/a.pdf,600000\n,600001\nhttps://example.com/b.pdf,600002\n"))
		require.NoError(t, err)
		assert.Equal(t, []core.Source{
			{URL: "https://example.com/a.pdf", Code: "600000"},
			{URL: "https://example.com/b.pdf", Code: "600002"},
		}, sources)
	})

	t.Run("priority list headers", func(t *testing.T) {
		input := "\ufeffTitle,Stock_Code,PDF_URL\nAnnual report,000001, https://example.com/r.pdf \n"
		sources, err := readSources(strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, []core.Source{{URL: "https://example.com/r.pdf", Code: "000001"}}, sources)
	})

	t.Run("missing url column", func(t *testing.T) {
		_, err := readSources(strings.NewReader("code\n600000\n"))
		assert.Error(t, err)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := readSources(strings.NewReader(""))
		assert.Error(t, err)
	})
}

func TestSetupLogger(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"docingest", "--log-level", "verbose", "status"})
	assert.ErrorContains(t, err, "invalid log level")
}

func TestCommands(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "priority.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("PDF_URL,Stock_Code\nhttps://example.com/1.pdf,600000\nhttps://example.com/2.pdf,600001\n"), 0644))

	for _, store := range []string{"badger", "sqlite"} {
		t.Run(store, func(t *testing.T) {
			dbPath := filepath.Join(dir, store, "state")
			global := []string{"docingest", "--log-level", "error", "--db", dbPath, "--store", store}
			run := func(args ...string) (string, error) {
				var out bytes.Buffer
				app := newApp()
				app.Writer = &out
				err := app.Run(append(append([]string{}, global...), args...))
				return out.String(), err
			}

			_, err := run("hydrate", "--csv", csvPath)
			require.NoError(t, err)

			// a second hydration is skipped, not an error
			_, err = run("hydrate", "--csv", csvPath)
			require.NoError(t, err)

			xlsxPath := filepath.Join(dir, store+".xlsx")
			out, err := run("status", "--output-dir", filepath.Join(dir, "none"), "--xlsx", xlsxPath)
			require.NoError(t, err)
			assert.Contains(t, out, "PENDING")
			assert.Contains(t, out, "No batch files found.")

			f, err := excelize.OpenFile(xlsxPath)
			require.NoError(t, err)
			rows, err := f.GetRows("Jobs")
			require.NoError(t, err)
			assert.Equal(t, []string{"PENDING", "2"}, rows[1])
			f.Close()

			_, err = run("reset-orphans")
			require.NoError(t, err)
		})
	}

	t.Run("unknown store", func(t *testing.T) {
		var out bytes.Buffer
		app := newApp()
		app.Writer = &out
		err := app.Run([]string{"docingest", "--store", "postgres", "--db", filepath.Join(dir, "x"), "reset-orphans"})
		assert.ErrorContains(t, err, "unknown job store backend")
	})

	t.Run("csv is required", func(t *testing.T) {
		app := newApp()
		app.Writer = &bytes.Buffer{}
		app.ErrWriter = &bytes.Buffer{}
		err := app.Run([]string{"docingest", "--db", filepath.Join(dir, "y"), "hydrate"})
		assert.Error(t, err)
	})
}
