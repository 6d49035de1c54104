package config

import (
	"flag"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	Env     string
	DataDir string

	Gemini    GeminiConfig
	Providers ProviderConfig
	Artifact  ArtifactConfig
}

type GeminiConfig struct {
	Model string
}

// ProviderConfig points at the task-style generation backends per media
// kind. Empty base URLs leave the kind without a provider.
type ProviderConfig struct {
	ImageBaseURL   string
	VideoBaseURL   string
	AudioBaseURL   string
	SpeakerBaseURL string
	APIKey         string
}

type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8090", "server port")
	dataDir := flag.String("data", "", "data directory (projects, artifacts, ledger)")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	dir := firstNonEmpty(strings.TrimSpace(*dataDir), strings.TrimSpace(os.Getenv("NEXFLOW_DATA_DIR")), "data")

	return &Config{
		Port:    *port,
		Env:     env,
		DataDir: dir,
		Gemini: GeminiConfig{
			Model: firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_MODEL")), "gemini-2.0-flash"),
		},
		Providers: ProviderConfig{
			ImageBaseURL:   strings.TrimSpace(os.Getenv("IMAGE_PROVIDER_URL")),
			VideoBaseURL:   strings.TrimSpace(os.Getenv("VIDEO_PROVIDER_URL")),
			AudioBaseURL:   strings.TrimSpace(os.Getenv("AUDIO_PROVIDER_URL")),
			SpeakerBaseURL: strings.TrimSpace(os.Getenv("SPEAKER_PROVIDER_URL")),
			APIKey:         strings.TrimSpace(os.Getenv("PROVIDER_API_KEY")),
		},
		Artifact: loadArtifactConfig(env),
	}, nil
}

func loadArtifactConfig(env string) ArtifactConfig {
	endpoint := resolveArtifactEndpoint(env)
	return ArtifactConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_BUCKET")), "nexflow-artifacts"),
		UseSSL:    resolveArtifactUseSSL(env),
	}
}

func resolveArtifactEndpoint(env string) string {
	if strings.EqualFold(env, "local") {
		return strings.TrimSpace(os.Getenv("ARTIFACT_MINIO_ENDPOINT"))
	}
	return strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT"))
}

func resolveArtifactUseSSL(env string) bool {
	if strings.EqualFold(env, "local") {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("ARTIFACT_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	return strings.EqualFold(raw, "true") || raw == "1"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
