package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: "9090"
storage:
  type: minio
jwt:
  secret: dev-secret
  expire_hours: 2
`)

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.JWT.ExpireTime != 2*time.Hour {
		t.Errorf("expire = %v, want 2h", cfg.JWT.ExpireTime)
	}
	if cfg.AI.MaxRetries != 3 {
		t.Errorf("max retries = %d, want 3", cfg.AI.MaxRetries)
	}
	if cfg.Generation.MinContentLength != 50 || cfg.Generation.MaxQuestions != 20 {
		t.Errorf("generation limits = %+v", cfg.Generation)
	}
	if cfg.Conversation.Store != "memory" {
		t.Errorf("conversation store = %q, want memory", cfg.Conversation.Store)
	}
	if cfg.AI.Timeout() != 300*time.Second {
		t.Errorf("timeout = %v", cfg.AI.Timeout())
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := writeConfig(t, `
storage:
  type: minio
ai:
  model: from-file
`)
	t.Setenv("AI_MODEL", "from-env")
	t.Setenv("CONVERSATION_STORE", "redis")

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AI.Model != "from-env" {
		t.Errorf("model = %q, want from-env", cfg.AI.Model)
	}
	if cfg.Conversation.Store != "redis" {
		t.Errorf("store = %q, want redis", cfg.Conversation.Store)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "short secret in release",
			body: `
server:
  mode: release
storage:
  type: minio
jwt:
  secret: short
`,
			wantErr: "JWT secret is too short",
		},
		{
			name: "default superuser password in release",
			body: `
server:
  mode: release
storage:
  type: minio
jwt:
  secret: 0123456789abcdef0123456789abcdef
`,
			wantErr: "first_superuser.password",
		},
		{
			name: "unknown conversation store",
			body: `
storage:
  type: minio
conversation:
  store: etcd
`,
			wantErr: "unknown conversation store",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
