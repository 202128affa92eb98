package configflags

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/sentichat/sentichat/pkg/chat"
)

// ConfigFlags holds the location of an optional AI profile file. The profile is a YAML
// chat.Config; values it sets take precedence over the --ai-* flags.
type ConfigFlags struct {
	Path string
}

func NewConfigFlags() *ConfigFlags {
	return &ConfigFlags{}
}

func (f *ConfigFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Path,
		"ai-config",
		f.Path,
		"YAML profile with modelId, baseUrl, systemInstruction, imageSystemInstruction and persistUserTurnEagerly")
}

// GetConfig overlays the profile file, if any, onto base.
func (f *ConfigFlags) GetConfig(base chat.Config) (chat.Config, error) {
	if f.Path == "" {
		return base, nil
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return base, errors.WithMessage(err, "could not load config")
	}
	config := base
	if err := yaml.Unmarshal(data, &config); err != nil {
		return base, errors.WithMessage(err, "couldn't unmarshal config")
	}
	return config.WithDefaults(), nil
}
