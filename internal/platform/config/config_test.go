package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID":     "zk-dev",
		"API_CARRIER_BASE_URL":        "https://carrier.example.com/v1",
		"API_EMAIL_ENDPOINT":          "https://app.example.com/api/email",
		"API_STORAGE_INVOICES_BUCKET": "zk-invoices-dev",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "zk-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Events.ProjectID != "zk-dev" {
		t.Errorf("expected events project to default to firebase project, got %s", cfg.Events.ProjectID)
	}
	if cfg.Events.TopicID != "order-events" {
		t.Errorf("unexpected default events topic: %s", cfg.Events.TopicID)
	}
	if cfg.RateLimits.DefaultPerMinute != 120 {
		t.Errorf("unexpected default rate limit: %d", cfg.RateLimits.DefaultPerMinute)
	}
	if cfg.Carrier.PickupLocation != "Primary" {
		t.Errorf("unexpected default pickup location: %s", cfg.Carrier.PickupLocation)
	}
	if cfg.Carrier.TokenTTL != 9*24*time.Hour {
		t.Errorf("unexpected default carrier token ttl: %s", cfg.Carrier.TokenTTL)
	}
	if cfg.Carrier.RequestTimeout != 30*time.Second {
		t.Errorf("unexpected default carrier timeout: %s", cfg.Carrier.RequestTimeout)
	}
	if !cfg.Features.EnableInvoiceArchive {
		t.Errorf("expected invoice archive enabled by default")
	}
	if cfg.Metrics.Namespace != "admin_api" {
		t.Errorf("unexpected default metrics namespace: %s", cfg.Metrics.Namespace)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":               "9090",
		"API_SERVER_READ_TIMEOUT":       "20s",
		"API_SERVER_IDLE_TIMEOUT":       "2m",
		"API_FIREBASE_PROJECT_ID":       "zk-prod",
		"API_FIRESTORE_PROJECT_ID":      "zk-fire",
		"API_STORAGE_INVOICES_BUCKET":   "invoices-prod",
		"API_PSP_STRIPE_API_KEY":        "secret://stripe/api",
		"API_CARRIER_BASE_URL":          "https://carrier.example.com/v1",
		"API_CARRIER_EMAIL":             "ops@example.com",
		"API_CARRIER_PASSWORD":          "secret://carrier/password",
		"API_CARRIER_PICKUP_LOCATION":   "Warehouse-2",
		"API_CARRIER_TOKEN_TTL":         "24h",
		"API_EMAIL_ENDPOINT":            "https://app.example.com/api/email",
		"API_EMAIL_APP_BASE_URL":        "https://app.example.com",
		"API_EVENTS_PROJECT_ID":         "zk-events",
		"API_EVENTS_TOPIC_ID":           "fulfillment-events",
		"API_RATELIMIT_DEFAULT_PER_MIN": "150",
		"API_FEATURE_INVOICE_ARCHIVE":   "false",
		"API_FEATURE_ORDER_EVENTS":      "true",
		"API_METRICS_NAMESPACE":         "zenkart",
	}

	secrets := map[string]string{
		"secret://stripe/api":       "stripe-key",
		"secret://carrier/password": "carrier-pass",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Firestore.ProjectID != "zk-fire" {
		t.Errorf("expected explicit firestore project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PSP.StripeAPIKey != "stripe-key" {
		t.Errorf("expected resolved stripe api key, got %s", cfg.PSP.StripeAPIKey)
	}
	if cfg.Carrier.Password != "carrier-pass" {
		t.Errorf("expected resolved carrier password, got %s", cfg.Carrier.Password)
	}
	if cfg.Carrier.PickupLocation != "Warehouse-2" {
		t.Errorf("unexpected pickup location %s", cfg.Carrier.PickupLocation)
	}
	if cfg.Carrier.TokenTTL != 24*time.Hour {
		t.Errorf("unexpected carrier token ttl %s", cfg.Carrier.TokenTTL)
	}
	if cfg.Events.ProjectID != "zk-events" {
		t.Errorf("unexpected events project %s", cfg.Events.ProjectID)
	}
	if cfg.Events.TopicID != "fulfillment-events" {
		t.Errorf("unexpected events topic %s", cfg.Events.TopicID)
	}
	if cfg.Features.EnableInvoiceArchive {
		t.Errorf("expected invoice archive disabled")
	}
	if cfg.Metrics.Namespace != "zenkart" {
		t.Errorf("unexpected metrics namespace %s", cfg.Metrics.Namespace)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\n" +
		"API_FIREBASE_PROJECT_ID=zk-dot\n" +
		"API_CARRIER_BASE_URL=https://carrier.example.com/v1\n" +
		"API_EMAIL_ENDPOINT=https://app.example.com/api/email\n" +
		"API_STORAGE_INVOICES_BUCKET=invoices-dot\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "zk-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	want := map[string]bool{}
	for _, f := range fields {
		want[f] = true
	}
	for _, expected := range []string{"Firebase.ProjectID", "Carrier.BaseURL", "Email.Endpoint"} {
		if !want[expected] {
			t.Errorf("expected %s in validation fields %v", expected, fields)
		}
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := baseEnv()
	env["API_PSP_STRIPE_API_KEY"] = "secret://missing"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
		"API_SECRET_VERSION_PINS": "secret://stripe/api=5",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
	if got := values["API_SECRET_VERSION_PINS"]; got != "secret://stripe/api=5" {
		t.Fatalf("expected override version pin, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(baseEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Carrier.Password"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("Carrier.Password")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "Carrier.Password" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	Load(context.Background(),
		WithEnvMap(baseEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Carrier.Password"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := baseEnv()
	env["API_CARRIER_PASSWORD"] = "sm://carrier/password"

	secrets := map[string]string{
		"secret://carrier/password": "legacy-secret",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Carrier.Password != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.Carrier.Password)
	}
}
