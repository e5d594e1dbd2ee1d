package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "kaigo-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.PubSub.ProjectID != "kaigo-dev" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.ImportTopic != defaultImportTopic {
		t.Errorf("unexpected default import topic: %s", cfg.PubSub.ImportTopic)
	}
	if cfg.Secrets.ProjectID != "kaigo-dev" {
		t.Errorf("expected secrets project to default to firestore project, got %s", cfg.Secrets.ProjectID)
	}
	if cfg.Import.BatchSize != defaultImportBatchSize {
		t.Errorf("unexpected default import batch size: %d", cfg.Import.BatchSize)
	}
	if cfg.Import.MatchThreshold != defaultMatchThreshold {
		t.Errorf("unexpected default match threshold: %f", cfg.Import.MatchThreshold)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if len(cfg.Auth.Tokens) != 0 {
		t.Errorf("expected no auth tokens, got %v", cfg.Auth.Tokens)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":             "9090",
		"API_SERVER_READ_TIMEOUT":     "5s",
		"API_FIRESTORE_PROJECT_ID":    "kaigo-prod",
		"API_FIRESTORE_EMULATOR_HOST": "localhost:8200",
		"API_PUBSUB_PROJECT_ID":       "kaigo-events",
		"API_PUBSUB_IMPORT_TOPIC":     "import-done",
		"API_STORAGE_ARCHIVE_BUCKET":  "kaigo-import-archive",
		"API_AUTH_TOKENS":             "importer=tok-a, ops=tok-b",
		"API_IMPORT_BATCH_SIZE":       "25",
		"API_IMPORT_MATCH_THRESHOLD":  "0.9",
		"API_IDEMPOTENCY_TTL":         "48h",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("unexpected port: %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.EmulatorHost != "localhost:8200" {
		t.Errorf("unexpected emulator host: %s", cfg.Firestore.EmulatorHost)
	}
	if cfg.PubSub.ProjectID != "kaigo-events" {
		t.Errorf("unexpected pubsub project: %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.ImportTopic != "import-done" {
		t.Errorf("unexpected import topic: %s", cfg.PubSub.ImportTopic)
	}
	if cfg.Storage.ArchiveBucket != "kaigo-import-archive" {
		t.Errorf("unexpected archive bucket: %s", cfg.Storage.ArchiveBucket)
	}
	if cfg.Auth.Tokens["importer"] != "tok-a" || cfg.Auth.Tokens["ops"] != "tok-b" {
		t.Errorf("unexpected auth tokens: %v", cfg.Auth.Tokens)
	}
	if cfg.Import.BatchSize != 25 {
		t.Errorf("unexpected batch size: %d", cfg.Import.BatchSize)
	}
	if cfg.Import.MatchThreshold != 0.9 {
		t.Errorf("unexpected match threshold: %f", cfg.Import.MatchThreshold)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl: %s", cfg.Idempotency.TTL)
	}
}

func TestLoadResolvesTokenSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "kaigo-dev",
		"API_AUTH_TOKENS":          "importer=sm://import-token",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "sm://import-token" {
			t.Fatalf("unexpected ref %q", ref)
		}
		return "resolved-token", nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Auth.Tokens["importer"] != "resolved-token" {
		t.Errorf("expected resolved token, got %q", cfg.Auth.Tokens["importer"])
	}
}

func TestLoadSecretResolutionFailure(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "kaigo-dev",
		"API_AUTH_TOKENS":          "importer=sm://import-token",
	}

	resolver := SecretResolverFunc(func(context.Context, string) (string, error) {
		return "", errors.New("access denied")
	})

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if secretErr.Ref != "sm://import-token" {
		t.Errorf("unexpected ref: %s", secretErr.Ref)
	}
}

func TestLoadSecretReferenceWithoutResolver(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "kaigo-dev",
		"API_AUTH_TOKENS":          "importer=sm://import-token",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
}

func TestLoadValidation(t *testing.T) {
	env := map[string]string{
		"API_IMPORT_MATCH_THRESHOLD": "1.5",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	fields := validationErr.Fields()
	want := map[string]bool{"Firestore.ProjectID": false, "Import.MatchThreshold": false}
	for _, field := range fields {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("expected %s in validation fields, got %v", field, fields)
		}
	}
}

func TestLoadFromDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "# local overrides\nexport API_FIRESTORE_PROJECT_ID=kaigo-local\nAPI_SERVER_PORT=\"7070\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firestore.ProjectID != "kaigo-local" {
		t.Errorf("unexpected project id: %s", cfg.Firestore.ProjectID)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("unexpected port: %s", cfg.Server.Port)
	}
}

func TestLoadEnvMapPrecedence(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("API_SERVER_PORT=7070\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}

	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "kaigo-dev",
		"API_SERVER_PORT":          "9090",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected env map to win, got %s", cfg.Server.Port)
	}
}
