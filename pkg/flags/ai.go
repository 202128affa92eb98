package flags

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/sentichat/sentichat/pkg/ai"
	"github.com/sentichat/sentichat/pkg/chat"
)

const (
	DefaultAIEndpoint = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultAIModel    = "learnlm-1.5-pro-experimental"
)

// AIFlags contains flags related to the completion provider.
type AIFlags struct {
	Endpoint               string
	Model                  string
	Timeout                time.Duration
	PersistUserTurnEagerly bool
}

func NewAIFlags() *AIFlags {
	return &AIFlags{
		Endpoint: DefaultAIEndpoint,
		Model:    DefaultAIModel,
		Timeout:  ai.DefaultTimeout,
	}
}

func (f *AIFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Endpoint, "ai-endpoint", f.Endpoint, "URL for an OpenAI-compatible endpoint. Set OPENAI_API_KEY to specify an API key.")
	fs.StringVar(&f.Model, "ai-model", f.Model, "The model used to generate replies")
	fs.DurationVar(&f.Timeout, "ai-timeout", f.Timeout, "Maximum time to wait for a single completion")
	fs.BoolVar(&f.PersistUserTurnEagerly, "persist-user-turn-eagerly", false,
		"Store the user's message before the completion is requested, so it survives a failed completion")
}

// GetChatConfig returns the service configuration described by the flags.
func (f *AIFlags) GetChatConfig() chat.Config {
	return chat.Config{
		ModelID:                f.Model,
		BaseURL:                f.Endpoint,
		PersistUserTurnEagerly: f.PersistUserTurnEagerly,
	}.WithDefaults()
}

// GetLLMClient builds the completion client for config, which may have been adjusted by a
// profile file after GetChatConfig.
func (f *AIFlags) GetLLMClient(config chat.Config) *ai.LLMClient {
	return ai.NewLLMClient(config.BaseURL, config.ModelID, "", f.Timeout)
}
