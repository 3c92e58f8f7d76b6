package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/filevault/filevault/pkg/analytics"
	"github.com/filevault/filevault/pkg/catalog"
	"github.com/filevault/filevault/pkg/classifier"
	"github.com/filevault/filevault/pkg/environment"
	"github.com/filevault/filevault/pkg/gateway"
	"github.com/filevault/filevault/pkg/logging"
	"github.com/filevault/filevault/pkg/objectstore"
	"github.com/filevault/filevault/pkg/pipeline"
)

// NewServeCommand starts the storage gateway.
func NewServeCommand(fs afero.Fs, ctx context.Context, env *environment.Environment, logger *logging.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the file storage gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(fs, ctx, env, logger)
		},
	}
}

func runServe(fs afero.Fs, ctx context.Context, env *environment.Environment, logger *logging.Logger) error {
	cat, err := catalog.New(env.Catalog)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer cat.Close()

	store, local, err := buildStore(fs, ctx, env)
	if err != nil {
		return err
	}

	cls, err := classifier.NewOllama(env.ClassifierModel, env.ClassifierTimeout(), logger)
	if err != nil {
		return fmt.Errorf("failed to create classifier: %w", err)
	}
	if env.ClassifierModel == "" {
		logger.Info("no classifier model configured, using heuristic categorization only")
	}

	verifier, err := buildVerifier(env)
	if err != nil {
		return err
	}

	p := pipeline.New(pipeline.Config{
		Store:      store,
		Catalog:    cat,
		Classifier: cls,
		Logger:     logger,
		PresignTTL: env.PresignTTL(),
	})

	server := gateway.New(gateway.Config{
		Pipeline:   p,
		Analytics:  analytics.New(analytics.Config{Catalog: cat}),
		Verifier:   verifier,
		LocalStore: local,
		Logger:     logger,
	})

	return server.Run(ctx, env.ListenAddr())
}

// buildStore picks the object store backend. The local store is returned
// separately as well so the gateway can mount the signed blob route for it.
func buildStore(fs afero.Fs, ctx context.Context, env *environment.Environment) (objectstore.Store, *objectstore.LocalStore, error) {
	switch env.StoreBackend {
	case "minio":
		store, err := objectstore.NewMinioStore(ctx, objectstore.MinioConfig{
			Endpoint:  env.MinioEndpoint,
			AccessKey: env.MinioAccessKey,
			SecretKey: env.MinioSecretKey,
			Bucket:    env.MinioBucket,
			UseSSL:    env.MinioUseSSL == "1",
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to minio: %w", err)
		}
		return store, nil, nil
	case "local":
		local, err := objectstore.NewLocalStore(fs, filepath.Join(env.DataDir, "blobs"),
			env.BaseURL(), []byte(env.PresignSecret))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create local store: %w", err)
		}
		return local, local, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q, want minio or local", env.StoreBackend)
	}
}

func buildVerifier(env *environment.Environment) (gateway.Verifier, error) {
	if env.IntrospectURL != "" {
		return gateway.NewRemoteVerifier(env.IntrospectURL, 10*time.Second), nil
	}
	verifier, err := gateway.NewStaticVerifier(env.AuthTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AUTH_TOKENS: %w", err)
	}
	return verifier, nil
}
