package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeed(t *testing.T) {
	topics, err := ParseSeed([]byte(`
topics:
  - id: 1
    name: " sensors.temperature "
    description: celsius
  - id: 2
    name: sensors.humidity
`))
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, Topic{ID: 1, Name: "sensors.temperature", Description: "celsius"}, topics[0])
	assert.Equal(t, "sensors.humidity", topics[1].Name)
}

func TestParseSeedRejectsInvalidEntries(t *testing.T) {
	cases := map[string]string{
		"duplicate id":   "topics:\n  - {id: 1, name: a}\n  - {id: 1, name: b}\n",
		"duplicate name": "topics:\n  - {id: 1, name: a}\n  - {id: 2, name: a}\n",
		"empty name":     "topics:\n  - {id: 1, name: ''}\n",
		"reserved id":    "topics:\n  - {id: 4294967295, name: any}\n",
		"whitespace":     "topics:\n  - {id: 1, name: 'two words'}\n",
		"not yaml":       "topics: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSeed([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadSeedMissingFile(t *testing.T) {
	_, err := LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadSeedFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	require.NoError(t, os.WriteFile(path, []byte("topics:\n  - {id: 9, name: nine}\n"), 0o644))

	topics, err := LoadSeed(path)
	require.NoError(t, err)
	assert.Equal(t, []Topic{{ID: 9, Name: "nine"}}, topics)
}
