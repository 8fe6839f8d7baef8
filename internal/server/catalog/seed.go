package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// seedFile is the on-disk layout of a topics seed file:
//
//	topics:
//	  - id: 1
//	    name: sensors.temperature
//	    description: Celsius readings
type seedFile struct {
	Topics []Topic `yaml:"topics"`
}

// LoadSeed reads topics from a YAML file.
func LoadSeed(path string) ([]Topic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read seed: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and validates a YAML seed document.
func ParseSeed(data []byte) ([]Topic, error) {
	var doc seedFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: decode seed: %w", err)
	}
	seenIDs := make(map[uint32]bool, len(doc.Topics))
	seenNames := make(map[string]bool, len(doc.Topics))
	for i := range doc.Topics {
		t := &doc.Topics[i]
		t.Name = strings.TrimSpace(t.Name)
		if err := Validate(*t); err != nil {
			return nil, fmt.Errorf("catalog: seed entry %d: %w", i, err)
		}
		if seenIDs[t.ID] || seenNames[t.Name] {
			return nil, fmt.Errorf("catalog: seed entry %d: duplicate topic %d/%s", i, t.ID, t.Name)
		}
		seenIDs[t.ID] = true
		seenNames[t.Name] = true
	}
	return doc.Topics, nil
}

// Seed upserts topics in a single transaction.
func Seed(ctx context.Context, store Store, topics []Topic) error {
	return store.WithTx(ctx, func(repo TopicRepository) error {
		for _, t := range topics {
			if err := repo.Upsert(ctx, t); err != nil {
				return fmt.Errorf("seed topic %d: %w", t.ID, err)
			}
		}
		return nil
	})
}

// ReservedID is the topic id used by the bus as its wildcard.
const ReservedID = ^uint32(0)

// Validate checks that a topic can be stored.
func Validate(t Topic) error {
	if t.ID == ReservedID {
		return fmt.Errorf("topic id %d is reserved", t.ID)
	}
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return fmt.Errorf("topic name required")
	}
	if strings.ContainsAny(name, " \t\n") {
		return fmt.Errorf("topic name %q must not contain whitespace", name)
	}
	return nil
}
