package config

import "testing"

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "", "fallback"); got != "fallback" {
		t.Fatalf("got %q", got)
	}
	if got := firstNonEmpty("primary", "secondary"); got != "primary" {
		t.Fatalf("got %q", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestArtifactConfigLocalUsesMinio(t *testing.T) {
	t.Setenv("ARTIFACT_MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("ARTIFACT_S3_ENDPOINT", "s3.amazonaws.com")
	t.Setenv("MINIO_ROOT_USER", "minio")
	t.Setenv("MINIO_ROOT_PASSWORD", "miniosecret")

	cfg := loadArtifactConfig("local")
	if !cfg.Enabled {
		t.Fatal("expected artifact storage enabled")
	}
	if cfg.Endpoint != "localhost:9000" {
		t.Fatalf("endpoint = %q", cfg.Endpoint)
	}
	if cfg.UseSSL {
		t.Fatal("local environment must not use SSL")
	}
	if cfg.AccessKey != "minio" || cfg.SecretKey != "miniosecret" {
		t.Fatalf("credentials = %q/%q", cfg.AccessKey, cfg.SecretKey)
	}
	if cfg.Bucket != "nexflow-artifacts" {
		t.Fatalf("bucket = %q", cfg.Bucket)
	}
}

func TestArtifactConfigProductionUsesS3(t *testing.T) {
	t.Setenv("ARTIFACT_MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("ARTIFACT_S3_ENDPOINT", "s3.amazonaws.com")
	t.Setenv("ARTIFACT_S3_ACCESS_KEY", "ak")
	t.Setenv("ARTIFACT_S3_SECRET_KEY", "sk")
	t.Setenv("ARTIFACT_S3_BUCKET", "prod-artifacts")
	t.Setenv("ARTIFACT_S3_REGION", "eu-west-1")

	cfg := loadArtifactConfig("production")
	if cfg.Endpoint != "s3.amazonaws.com" {
		t.Fatalf("endpoint = %q", cfg.Endpoint)
	}
	if !cfg.UseSSL {
		t.Fatal("production defaults to SSL")
	}
	if cfg.Bucket != "prod-artifacts" || cfg.Region != "eu-west-1" {
		t.Fatalf("bucket/region = %q/%q", cfg.Bucket, cfg.Region)
	}
}

func TestArtifactConfigDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("ARTIFACT_MINIO_ENDPOINT", "")
	t.Setenv("ARTIFACT_S3_ENDPOINT", "")
	if cfg := loadArtifactConfig("local"); cfg.Enabled {
		t.Fatal("no endpoint configured, storage must stay disabled")
	}
}

func TestResolveArtifactUseSSLOverride(t *testing.T) {
	t.Setenv("ARTIFACT_S3_USE_SSL", "false")
	if resolveArtifactUseSSL("production") {
		t.Fatal("explicit false ignored")
	}
	t.Setenv("ARTIFACT_S3_USE_SSL", "1")
	if !resolveArtifactUseSSL("production") {
		t.Fatal("explicit 1 ignored")
	}
}
