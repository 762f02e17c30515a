package preset

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/KamdynS/agent-playground/llm"
)

// file is the on-disk layout:
//
//	agents:
//	  - name: Web Search Agent
//	    role: Search the web for information
//	    model: groq:llama-3.3-70b-versatile
//	    tools:
//	      - name: duckduckgo
//	    instructions: [Always include sources in your response]
//	    show_tool_calls: true
//	    markdown: true
type file struct {
	Agents []fileAgent `yaml:"agents"`
}

type fileAgent struct {
	Definition `yaml:",inline"`
	Model      string `yaml:"model"`
}

// Load parses agent definitions. An agent without a model runs on
// DefaultModel.
func Load(r io.Reader) ([]Definition, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("agents file is empty")
		}
		return nil, fmt.Errorf("parse agents file: %w", err)
	}
	if len(f.Agents) == 0 {
		return nil, fmt.Errorf("agents file defines no agents")
	}

	defs := make([]Definition, len(f.Agents))
	for i, a := range f.Agents {
		def := a.Definition
		if def.Name == "" {
			return nil, fmt.Errorf("agent %d: name is required", i)
		}
		def.Model = DefaultModel
		if a.Model != "" {
			ref, err := llm.ParseModelRef(a.Model)
			if err != nil {
				return nil, fmt.Errorf("agent %q: %w", def.Name, err)
			}
			def.Model = ref
		}
		for _, spec := range def.Tools {
			if spec.Name == "" {
				return nil, fmt.Errorf("agent %q: tool name is required", def.Name)
			}
		}
		defs[i] = def
	}
	return defs, nil
}

// LoadFile reads definitions from path
func LoadFile(path string) ([]Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open agents file: %w", err)
	}
	defer f.Close()
	return Load(f)
}
