package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Canonical stage names for the content pipeline.
const (
	StageTopicAnalysis   = "topic_analysis"
	StageNicheResearch   = "niche_research"
	StageContentPlanning = "content_planning"
	StageContentCreation = "content_creation"
	StageSiteGeneration  = "site_generation"
	StageDeployment      = "deployment"
)

// StageDef defines one stage: its name and the progress checkpoint reached
// when it completes.
type StageDef struct {
	Name       string `yaml:"name"`
	Checkpoint int    `yaml:"checkpoint"`
}

// Registry holds the ordered stage list and transition rules. The order is
// data, not control flow: stages can be added, removed, or reordered by
// editing the registry alone.
type Registry struct {
	stages []StageDef
	index  map[string]int
}

// NewRegistry validates and builds a registry from an ordered stage list.
// Checkpoints must be strictly increasing, within (0, 100], and the final
// stage must reach exactly 100.
func NewRegistry(stages []StageDef) (*Registry, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("registry requires at least one stage")
	}
	index := make(map[string]int, len(stages))
	prev := 0
	for i, st := range stages {
		if st.Name == "" {
			return nil, fmt.Errorf("stage %d has an empty name", i)
		}
		if _, dup := index[st.Name]; dup {
			return nil, fmt.Errorf("duplicate stage %q", st.Name)
		}
		if st.Checkpoint <= prev || st.Checkpoint > 100 {
			return nil, fmt.Errorf("stage %q checkpoint %d is not monotonically increasing within (0,100]", st.Name, st.Checkpoint)
		}
		index[st.Name] = i
		prev = st.Checkpoint
	}
	if stages[len(stages)-1].Checkpoint != 100 {
		return nil, fmt.Errorf("final stage %q must reach checkpoint 100, got %d",
			stages[len(stages)-1].Name, stages[len(stages)-1].Checkpoint)
	}
	return &Registry{stages: stages, index: index}, nil
}

// DefaultRegistry returns the canonical content-pipeline stage order.
func DefaultRegistry() *Registry {
	r, err := NewRegistry([]StageDef{
		{Name: StageTopicAnalysis, Checkpoint: 15},
		{Name: StageNicheResearch, Checkpoint: 30},
		{Name: StageContentPlanning, Checkpoint: 45},
		{Name: StageContentCreation, Checkpoint: 65},
		{Name: StageSiteGeneration, Checkpoint: 85},
		{Name: StageDeployment, Checkpoint: 100},
	})
	if err != nil {
		panic(err) // built-in definition, validated at init
	}
	return r
}

// LoadRegistry reads a stage list from a YAML file.
//
// File format:
//
//	stages:
//	  - name: topic_analysis
//	    checkpoint: 15
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry file: %w", err)
	}
	var doc struct {
		Stages []StageDef `yaml:"stages"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing registry file: %w", err)
	}
	return NewRegistry(doc.Stages)
}

// First returns the name of the first stage.
func (r *Registry) First() string {
	return r.stages[0].Name
}

// Next returns the stage that runs after a successful completion of name.
// ok is false when name is the last stage (terminal) or unknown.
func (r *Registry) Next(name string) (string, bool) {
	i, known := r.index[name]
	if !known || i == len(r.stages)-1 {
		return "", false
	}
	return r.stages[i+1].Name, true
}

// Prev returns the stage that must complete before name may run.
// ok is false when name is the first stage or unknown.
func (r *Registry) Prev(name string) (string, bool) {
	i, known := r.index[name]
	if !known || i == 0 {
		return "", false
	}
	return r.stages[i-1].Name, true
}

// Contains reports whether name is a registered stage.
func (r *Registry) Contains(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Checkpoint returns the progress value reached when name completes.
func (r *Registry) Checkpoint(name string) int {
	i, ok := r.index[name]
	if !ok {
		return 0
	}
	return r.stages[i].Checkpoint
}

// Names returns the stage names in canonical order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.stages))
	for i, st := range r.stages {
		out[i] = st.Name
	}
	return out
}

// Len returns the number of stages.
func (r *Registry) Len() int {
	return len(r.stages)
}
