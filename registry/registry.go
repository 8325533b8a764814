package registry

import (
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/isdmx/sandgate/api"
)

//go:embed templates.yaml
var builtinTemplates []byte

// templateCatalog is the YAML shape of the built-in template catalog.
type templateCatalog struct {
	Templates []struct {
		ID             string            `yaml:"id"`
		Name           string            `yaml:"name"`
		Language       string            `yaml:"language"`
		Version        string            `yaml:"version"`
		DockerImage    string            `yaml:"docker_image"`
		DefaultEnvVars map[string]string `yaml:"default_env_vars"`
	} `yaml:"templates"`
}

// Registry aggregates the gateway's keyed stores. One instance is
// created per service and injected into every component that needs
// state; there are no package-level maps.
type Registry struct {
	logger    *zap.Logger
	Sandboxes *Store[api.Sandbox]
	Contexts  *Store[api.CodeContext]
	Templates *Store[api.Template]
	Files     *FileStore
	Tokens    *TokenStore
}

// New creates a registry seeded with the built-in template catalog.
func New(logger *zap.Logger) (*Registry, error) {
	r := &Registry{
		logger:    logger,
		Sandboxes: newStore[api.Sandbox](),
		Contexts:  newStore[api.CodeContext](),
		Templates: newStore[api.Template](),
		Files:     NewFileStore(),
		Tokens:    NewTokenStore(),
	}
	if err := r.seedTemplates(); err != nil {
		return nil, fmt.Errorf("seeding template catalog: %w", err)
	}
	return r, nil
}

func (r *Registry) seedTemplates() error {
	var catalog templateCatalog
	if err := yaml.Unmarshal(builtinTemplates, &catalog); err != nil {
		return err
	}

	now := time.Now()
	for _, entry := range catalog.Templates {
		r.Templates.Put(entry.ID, "system", api.Template{
			ID: entry.ID,
			Config: api.TemplateConfig{
				Name:           entry.Name,
				Language:       entry.Language,
				Version:        entry.Version,
				DockerImage:    entry.DockerImage,
				DefaultEnvVars: entry.DefaultEnvVars,
			},
			CreatedAt: now,
			UpdatedAt: now,
			IsPublic:  true,
		})
	}

	r.logger.Info("template catalog seeded", zap.Int("templates", len(catalog.Templates)))
	return nil
}

// PurgeOwner removes every sandbox, context, and file set owned by
// owner. Called when a stream connection drops.
func (r *Registry) PurgeOwner(owner string) {
	sandboxes := r.Sandboxes.PurgeOwner(owner)
	for _, id := range sandboxes {
		r.Files.DropSandbox(id)
	}
	contexts := r.Contexts.PurgeOwner(owner)
	if len(sandboxes) > 0 || len(contexts) > 0 {
		r.logger.Info("purged disconnected owner",
			zap.String("owner", owner),
			zap.Int("sandboxes", len(sandboxes)),
			zap.Int("contexts", len(contexts)))
	}
}

// NewID returns a fresh identifier for a registry record.
func NewID() string { return uuid.NewString() }
