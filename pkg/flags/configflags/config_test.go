package configflags

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentichat/sentichat/pkg/ai"
	"github.com/sentichat/sentichat/pkg/chat"
)

func TestGetConfig(t *testing.T) {
	base := chat.Config{ModelID: "base-model", BaseURL: "http://localhost:8000/v1"}.WithDefaults()

	tests := []struct {
		name     string
		profile  string
		expected chat.Config
	}{
		{
			name:    "profile overrides model and instruction",
			profile: "modelId: gpt-4o-mini\nsystemInstruction: Be kind.\npersistUserTurnEagerly: true\n",
			expected: chat.Config{
				ModelID:                "gpt-4o-mini",
				BaseURL:                "http://localhost:8000/v1",
				SystemInstruction:      "Be kind.",
				ImageSystemInstruction: ai.DefaultImageSystemInstruction,
				PersistUserTurnEagerly: true,
			},
		},
		{
			name:     "empty profile keeps base",
			profile:  "",
			expected: base,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "profile.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.profile), 0o600))

			f := &ConfigFlags{Path: path}
			config, err := f.GetConfig(base)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, config)
		})
	}
}

func TestGetConfigWithoutPath(t *testing.T) {
	base := chat.Config{ModelID: "m"}
	config, err := NewConfigFlags().GetConfig(base)
	require.NoError(t, err)
	assert.Equal(t, base, config)
}

func TestGetConfigErrors(t *testing.T) {
	_, err := (&ConfigFlags{Path: filepath.Join(t.TempDir(), "missing.yaml")}).GetConfig(chat.Config{})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("modelId: [unterminated"), 0o600))
	_, err = (&ConfigFlags{Path: path}).GetConfig(chat.Config{})
	assert.Error(t, err)
}
