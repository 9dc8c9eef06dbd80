package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults mirror the constants of the reference exploration run.
const (
	DefaultNodeCount                   = 100
	DefaultInitialEdgesPerNode         = 1
	DefaultPopulationSize              = 100
	DefaultMutationRate                = 0.05
	DefaultDesiredFitness              = 0.95
	DefaultMaxGenerations              = 10
	DefaultSimulationStepCount         = 100
	DefaultInitialResistantProbability = 0.3
	DefaultWidth                       = 150
	DefaultHeight                      = 150
	DefaultSpreadChance                = 0.3
	DefaultCheckFrequency              = 0.2
	DefaultRecoveryChance              = 0.3
	DefaultGainResistanceChance        = 0.2
	DefaultInitialOutbreakSize         = 1
	DefaultDegenerateWeights           = "uniform"
	DefaultStoreKind                   = "memory"
	DefaultStorePath                   = "virusnet.db"
	DefaultOutputDir                   = "results"
)

// VirusConfig holds the epidemic parameters of the virus-on-network backend.
type VirusConfig struct {
	SpreadChance         float64 `json:"spreadChance" yaml:"spreadChance" validate:"gte=0,lte=1"`
	CheckFrequency       float64 `json:"checkFrequency" yaml:"checkFrequency" validate:"gte=0,lte=1"`
	RecoveryChance       float64 `json:"recoveryChance" yaml:"recoveryChance" validate:"gte=0,lte=1"`
	GainResistanceChance float64 `json:"gainResistanceChance" yaml:"gainResistanceChance" validate:"gte=0,lte=1"`
	InitialOutbreakSize  int     `json:"initialOutbreakSize" yaml:"initialOutbreakSize" validate:"gte=0"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Kind string `json:"kind" yaml:"kind" validate:"oneof=memory sqlite"`
	Path string `json:"path" yaml:"path"`
}

// RunConfig is the full set of options for one exploration run.
type RunConfig struct {
	NodeCount                   int     `json:"nodeCount" yaml:"nodeCount" validate:"gt=0"`
	InitialEdgesPerNode         int     `json:"initialEdgesPerNode" yaml:"initialEdgesPerNode" validate:"gte=0"`
	PopulationSize              int     `json:"populationSize" yaml:"populationSize" validate:"gt=0,even"`
	MutationRate                float64 `json:"mutationRate" yaml:"mutationRate" validate:"gte=0,lte=1"`
	DesiredFitness              float64 `json:"desiredFitness" yaml:"desiredFitness" validate:"gte=0"`
	MaxGenerations              int     `json:"maxGenerations" yaml:"maxGenerations" validate:"gt=0"`
	SimulationStepCount         int     `json:"simulationStepCount" yaml:"simulationStepCount" validate:"gte=0"`
	InitialResistantProbability float64 `json:"initialResistantProbability" yaml:"initialResistantProbability" validate:"gte=0,lte=1"`

	Seed              int64         `json:"seed" yaml:"seed"`
	Workers           int           `json:"workers" yaml:"workers" validate:"gte=0"`
	EvaluationTimeout time.Duration `json:"evaluationTimeout" yaml:"evaluationTimeout" validate:"gte=0"`
	DegenerateWeights string        `json:"degenerateWeights" yaml:"degenerateWeights" validate:"oneof=uniform abort"`
	AbortOnIsolated   bool          `json:"abortOnIsolated" yaml:"abortOnIsolated"`
	Width             float64       `json:"width" yaml:"width" validate:"gt=0"`
	Height            float64       `json:"height" yaml:"height" validate:"gt=0"`

	Virus     VirusConfig `json:"virus" yaml:"virus"`
	Store     StoreConfig `json:"store" yaml:"store"`
	OutputDir string      `json:"outputDir" yaml:"outputDir"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("even", validateEven)
}

// validateEven accepts even integers. Pairwise elimination removes
// floor(n/2) individuals, so only even sizes halve exactly.
func validateEven(fl validator.FieldLevel) bool {
	return fl.Field().Int()%2 == 0
}

func Default() RunConfig {
	return RunConfig{
		NodeCount:                   DefaultNodeCount,
		InitialEdgesPerNode:         DefaultInitialEdgesPerNode,
		PopulationSize:              DefaultPopulationSize,
		MutationRate:                DefaultMutationRate,
		DesiredFitness:              DefaultDesiredFitness,
		MaxGenerations:              DefaultMaxGenerations,
		SimulationStepCount:         DefaultSimulationStepCount,
		InitialResistantProbability: DefaultInitialResistantProbability,
		DegenerateWeights:           DefaultDegenerateWeights,
		Width:                       DefaultWidth,
		Height:                      DefaultHeight,
		Virus: VirusConfig{
			SpreadChance:         DefaultSpreadChance,
			CheckFrequency:       DefaultCheckFrequency,
			RecoveryChance:       DefaultRecoveryChance,
			GainResistanceChance: DefaultGainResistanceChance,
			InitialOutbreakSize:  DefaultInitialOutbreakSize,
		},
		Store: StoreConfig{
			Kind: DefaultStoreKind,
			Path: DefaultStorePath,
		},
		OutputDir: DefaultOutputDir,
	}
}

// Load reads a YAML or JSON file over the defaults. Keys absent from the
// file keep their default value.
func Load(path string) (RunConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// Validate checks struct tags and reports every failing field.
func (c RunConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s must satisfy %s (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Map flattens the config for persisted run records and artifacts.
func (c RunConfig) Map() map[string]any {
	return map[string]any{
		"nodeCount":                   c.NodeCount,
		"initialEdgesPerNode":         c.InitialEdgesPerNode,
		"populationSize":              c.PopulationSize,
		"mutationRate":                c.MutationRate,
		"desiredFitness":              c.DesiredFitness,
		"maxGenerations":              c.MaxGenerations,
		"simulationStepCount":         c.SimulationStepCount,
		"initialResistantProbability": c.InitialResistantProbability,
		"seed":                        c.Seed,
		"workers":                     c.Workers,
		"evaluationTimeout":           c.EvaluationTimeout.String(),
		"degenerateWeights":           c.DegenerateWeights,
		"abortOnIsolated":             c.AbortOnIsolated,
		"width":                       c.Width,
		"height":                      c.Height,
		"virus": map[string]any{
			"spreadChance":         c.Virus.SpreadChance,
			"checkFrequency":       c.Virus.CheckFrequency,
			"recoveryChance":       c.Virus.RecoveryChance,
			"gainResistanceChance": c.Virus.GainResistanceChance,
			"initialOutbreakSize":  c.Virus.InitialOutbreakSize,
		},
	}
}
