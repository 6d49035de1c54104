package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"nexflow/internal/asset"
	"nexflow/internal/gateway/config"
	"nexflow/internal/gateway/handler"
	"nexflow/internal/gateway/server"
	"nexflow/internal/graph"
	"nexflow/internal/history"
	"nexflow/internal/job"
	"nexflow/internal/ledger"
	"nexflow/internal/project"
	"nexflow/internal/propagate"
	"nexflow/internal/provider"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store := graph.NewStore()

	engine := propagate.New(store)
	engine.Bind()

	led := ledger.NewFromEnv(filepath.Join(cfg.DataDir, "tasks.json"))
	store.Subscribe(func(ev graph.Event) {
		if ev.Op == graph.OpNodeRemoved {
			led.RemoveByNode(ev.NodeID)
		}
	})

	historyMgr := history.NewManager()
	recorder := history.NewRecorder(store, historyMgr)
	recorder.Bind()

	mat := asset.NewMaterializer(buildStorage(cfg))
	runner := job.NewRunner(store, buildProviders(cfg), mat, led, job.RealClock{})

	projectPath := filepath.Join(cfg.DataDir, "project.json")
	if p, err := project.Load(projectPath); err == nil {
		p.Apply(store)
		log.Printf("loaded project %s (%d nodes, %d edges)", projectPath, len(p.Nodes), len(p.Edges))
	} else if !os.IsNotExist(err) {
		log.Printf("load project %s: %v", projectPath, err)
	}

	saver := project.NewAutosaver(store, projectPath, time.Second)
	saver.Bind()

	api := &handler.API{
		Store:   store,
		Runner:  runner,
		Ledger:  led,
		History: recorder,
		Watch:   handler.NewWatchHub(store),
	}

	srv := server.New(cfg.Port, api.Routes())
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	saver.Flush()
}

// buildStorage picks the materializer backend: S3/minio when configured,
// local disk otherwise. A nil backend leaves materialization disabled and
// jobs fall back to remote URLs.
func buildStorage(cfg *config.Config) asset.Storage {
	if cfg.Artifact.Enabled {
		s3, err := asset.NewS3Store(asset.S3Config{
			Endpoint:  cfg.Artifact.Endpoint,
			Region:    cfg.Artifact.Region,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			Bucket:    cfg.Artifact.Bucket,
			UseSSL:    cfg.Artifact.UseSSL,
		})
		if err == nil {
			return s3
		}
		log.Printf("s3 storage unavailable, using local disk: %v", err)
	}
	local, err := asset.NewLocalStore(filepath.Join(cfg.DataDir, "artifacts"))
	if err != nil {
		log.Printf("local artifact storage unavailable: %v", err)
		return nil
	}
	return local
}

func buildProviders(cfg *config.Config) *provider.Registry {
	reg := provider.NewRegistry()

	if gem, err := provider.NewGemini(context.Background(), cfg.Gemini.Model); err == nil {
		reg.Register(graph.KindLanguageModel, gem)
	} else {
		log.Printf("gemini unavailable: %v", err)
	}

	taskAPIs := []struct {
		kind graph.Kind
		name string
		base string
	}{
		{graph.KindImage, "image", cfg.Providers.ImageBaseURL},
		{graph.KindVideo, "video", cfg.Providers.VideoBaseURL},
		{graph.KindAudio, "audio", cfg.Providers.AudioBaseURL},
		{graph.KindSpeaker, "speaker", cfg.Providers.SpeakerBaseURL},
	}
	for _, t := range taskAPIs {
		if t.base == "" {
			continue
		}
		reg.Register(t.kind, provider.NewTaskAPI(provider.TaskAPIConfig{
			Name:    t.name,
			BaseURL: t.base,
			APIKey:  cfg.Providers.APIKey,
		}))
	}
	return reg
}
