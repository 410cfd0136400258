package deploy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kayz/scribe/internal/config"
)

func TestDockerfileContainsHealthcheck(t *testing.T) {
	content, err := os.ReadFile(filepath.Join("..", "Dockerfile"))
	if err != nil {
		t.Fatalf("read Dockerfile: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "HEALTHCHECK") || !strings.Contains(text, "/api/status") {
		t.Fatalf("expected Dockerfile healthcheck on /api/status")
	}
	if !strings.Contains(text, `CMD ["serve", "--config", "/app/.scribe.yaml"]`) {
		t.Fatalf("expected Dockerfile default command to serve")
	}
}

func TestComposeContainsHealthchecks(t *testing.T) {
	content, err := os.ReadFile(filepath.Join("..", "docker-compose.yml"))
	if err != nil {
		t.Fatalf("read docker-compose.yml: %v", err)
	}
	text := string(content)
	for _, want := range []string{"scribe:", "redis:", "postgres:", "healthcheck:", "SCRIBE_REDIS_ADDR"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected compose file to contain %q", want)
		}
	}
}

func TestBundledConfigsLoad(t *testing.T) {
	t.Setenv("SCRIBE_REDIS_ADDR", "redis:6379")
	for _, name := range []string{"scribe.yaml", "scribe.postgres.yaml"} {
		cfg, err := config.LoadFromPath(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if cfg.Server.Port != 8686 {
			t.Fatalf("%s: port = %d", name, cfg.Server.Port)
		}
	}
}
