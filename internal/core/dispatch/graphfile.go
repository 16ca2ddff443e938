package dispatch

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/parleyhq/parley/internal/core"
)

// GraphFile is the standalone on-disk form of the capability graph.
// Operators use it to validate a graph before merging it into the main
// config.
type GraphFile struct {
	Root  string                `yaml:"root"`
	Nodes []core.CapabilityNode `yaml:"nodes"`
}

// LoadGraphFile reads and validates a capability graph from a YAML file.
func LoadGraphFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- Graph path is user-provided
	if err != nil {
		return nil, fmt.Errorf("read graph %s: %w", path, err)
	}

	var file GraphFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse graph %s: %w", path, err)
	}

	graph, err := NewGraph(file.Nodes, file.Root)
	if err != nil {
		return nil, fmt.Errorf("validate graph %s: %w", path, err)
	}
	return graph, nil
}
