package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
)

// Settings shape every query. They are process-wide and not persisted.
type Settings struct {
	ResponseType backend.ResponseType
	Temperature  float64
}

func DefaultSettings() Settings {
	return Settings{ResponseType: backend.ResponseConcise, Temperature: 0.7}
}

func (s Settings) Validate() error {
	if !s.ResponseType.Valid() {
		return invalid("response_type", fmt.Sprintf("%q is not one of brief, concise, expansive", s.ResponseType))
	}
	if s.Temperature < 0 || s.Temperature > 1 {
		return invalid("temperature", fmt.Sprintf("%v is outside [0, 1]", s.Temperature))
	}
	return nil
}

// Options holds Settings and the model choice.
type Options struct {
	client *backend.Client
	logger *slog.Logger

	mu       sync.Mutex
	settings Settings
	model    string
	models   []backend.Model
}

func newOptions(client *backend.Client, settings Settings, model string, logger *slog.Logger) *Options {
	if settings.Validate() != nil {
		settings = DefaultSettings()
	}
	if model == "" {
		model = backend.DefaultModel
	}
	return &Options{client: client, logger: logger, settings: settings, model: model}
}

func (o *Options) Settings() Settings {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settings
}

func (o *Options) SetSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	o.settings = s
	o.mu.Unlock()
	return nil
}

func (o *Options) Model() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.model
}

// SetModel selects name. Once a model list is loaded, name must be in it.
func (o *Options) SetModel(name string) error {
	if name == "" {
		return invalid("model", "required")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.models) > 0 && !hasModel(o.models, name) {
		return invalid("model", fmt.Sprintf("%q is not offered by the service", name))
	}
	o.model = name
	return nil
}

func (o *Options) Models() []backend.Model {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]backend.Model(nil), o.models...)
}

// LoadModels fetches the offered models. If the selected model is not
// offered, the first listed one replaces it.
func (o *Options) LoadModels(ctx context.Context) ([]backend.Model, error) {
	models, err := o.client.Models(ctx)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.models = models
	if len(models) > 0 && !hasModel(models, o.model) {
		o.logger.Info("selected model not offered, switching", "from", o.model, "to", models[0].Name)
		o.model = models[0].Name
	}
	return append([]backend.Model(nil), models...), nil
}

func hasModel(models []backend.Model, name string) bool {
	for _, m := range models {
		if m.Name == name {
			return true
		}
	}
	return false
}

func (o *Options) reset() {
	o.mu.Lock()
	o.models = nil
	o.mu.Unlock()
}
