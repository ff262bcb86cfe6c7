package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"loadalert-sim/internal/telemetry"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

var templateFiles = []string{
	"grafana-dashboard.json.tmpl",
	"grafana-dashboard-postgres.json.tmpl",
}

// Render parses dashboard templates and writes rendered dashboards to outDir.
// Datasource UIDs come from GREPTIMEDB_DATASOURCE_UID and POSTGRES_DATASOURCE_UID.
func Render(outDir string) error {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}
	data := struct{ Table string }{Table: telemetry.ReadingTableName}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	rendered := make(map[string]string, len(templateFiles))
	for _, name := range templateFiles {
		t, err := template.New(name).Funcs(funcMap).ParseFS(templates, "templates/"+name)
		if err != nil {
			return err
		}
		var b strings.Builder
		if err := t.Execute(&b, data); err != nil {
			return fmt.Errorf("render %s: %w", name, err)
		}
		rendered[name] = b.String()
	}
	for _, name := range templateFiles {
		outPath := filepath.Join(outDir, strings.TrimSuffix(name, ".tmpl"))
		if err := os.WriteFile(outPath, []byte(rendered[name]), 0o644); err != nil {
			return err
		}
	}
	return nil
}
