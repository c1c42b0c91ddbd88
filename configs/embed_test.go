package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/config"
)

func TestProjectConfigTemplate_MatchesDefaults(t *testing.T) {
	var parsed config.Config
	require.NoError(t, yaml.Unmarshal([]byte(ProjectConfigTemplate), &parsed))

	assert.Equal(t, *config.NewConfig(), parsed)
}
