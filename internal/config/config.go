// Package config loads and validates campaign configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"clonebo/internal/acquisition"
	"clonebo/internal/generative"
	"clonebo/internal/numbering"
	"clonebo/internal/oracle"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigurationError is an invalid option or option combination. It is
// fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidConfig, e.Err}
	}
	return []error{ErrInvalidConfig}
}

// Errorf builds a ConfigurationError for field.
func Errorf(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

type Config struct {
	Sequence    SequenceConfig    `yaml:"sequence" json:"sequence"`
	Acquisition AcquisitionConfig `yaml:"acquisition" json:"acquisition"`
	Campaign    CampaignConfig    `yaml:"campaign" json:"campaign"`
	Proposer    ProposerConfig    `yaml:"proposer" json:"proposer"`
	Surrogate   SurrogateConfig   `yaml:"surrogate" json:"surrogate"`
	Embedding   EmbeddingConfig   `yaml:"embedding" json:"embedding"`
	Generative  GenerativeConfig  `yaml:"generative" json:"generative"`
	Oracle      OracleConfig      `yaml:"oracle" json:"oracle"`
	Storage     StorageConfig     `yaml:"storage" json:"storage"`
}

type SequenceConfig struct {
	Alphabet  string `yaml:"alphabet" json:"alphabet" validate:"required,alpha"`
	MinLength int    `yaml:"min_length" json:"min_length" validate:"gt=0"`
	MaxLength int    `yaml:"max_length" json:"max_length" validate:"gtefield=MinLength"`
	Scheme    string `yaml:"scheme" json:"scheme" validate:"required,numbering_scheme"`
}

type AcquisitionConfig struct {
	Kind        string  `yaml:"kind" json:"kind" validate:"acquisition_kind"`
	Coefficient float64 `yaml:"coefficient" json:"coefficient" validate:"gte=0"`
}

type CampaignConfig struct {
	BatchSize            int           `yaml:"batch_size" json:"batch_size" validate:"gt=0,ltefield=OracleBudget"`
	OracleBudget         int           `yaml:"oracle_budget" json:"oracle_budget" validate:"gt=0"`
	MaxRounds            int           `yaml:"max_rounds" json:"max_rounds" validate:"gte=0"`
	MinEvaluated         int           `yaml:"min_evaluated" json:"min_evaluated" validate:"gte=1"`
	DiversityThreshold   int           `yaml:"diversity_threshold" json:"diversity_threshold" validate:"gte=0"`
	ConvergencePatience  int           `yaml:"convergence_patience" json:"convergence_patience" validate:"gte=0"`
	ConvergenceThreshold float64       `yaml:"convergence_threshold" json:"convergence_threshold" validate:"gte=0"`
	ProposalMultiplier   int           `yaml:"proposal_multiplier" json:"proposal_multiplier" validate:"gte=1"`
	SeedCount            int           `yaml:"seed_count" json:"seed_count" validate:"gte=1"`
	ExhaustionTolerance  int           `yaml:"exhaustion_tolerance" json:"exhaustion_tolerance" validate:"gte=0"`
	Workers              int           `yaml:"workers" json:"workers" validate:"gte=1"`
	OracleTimeout        time.Duration `yaml:"oracle_timeout" json:"oracle_timeout" validate:"gte=0"`
	RefitPolicy          string        `yaml:"refit_policy" json:"refit_policy" validate:"oneof=full window"`
	RefitWindow          int           `yaml:"refit_window" json:"refit_window" validate:"gte=0"`
	Seed                 int64         `yaml:"seed" json:"seed"`
}

type ProposerConfig struct {
	Temperature      float64  `yaml:"temperature" json:"temperature" validate:"gt=0"`
	MutationRate     float64  `yaml:"mutation_rate" json:"mutation_rate" validate:"gt=0,lte=1"`
	MaxMutations     int      `yaml:"max_mutations" json:"max_mutations" validate:"gte=1"`
	CDRWeight        float64  `yaml:"cdr_weight" json:"cdr_weight" validate:"gt=0"`
	RetryBudget      int      `yaml:"retry_budget" json:"retry_budget" validate:"gte=1"`
	MinLogLikelihood *float64 `yaml:"min_log_likelihood" json:"min_log_likelihood,omitempty"`
}

type SurrogateConfig struct {
	// LengthScale <= 0 selects the median pairwise distance heuristic.
	LengthScale    float64 `yaml:"length_scale" json:"length_scale"`
	SignalVariance float64 `yaml:"signal_variance" json:"signal_variance" validate:"gt=0"`
	NoiseVariance  float64 `yaml:"noise_variance" json:"noise_variance" validate:"gt=0"`
}

type EmbeddingConfig struct {
	Kind string `yaml:"kind" json:"kind" validate:"oneof=onehot remote"`
	// Dim is the remote embedding width.
	Dim int `yaml:"dim" json:"dim" validate:"required_if=Kind remote,gte=0"`
}

type GenerativeConfig struct {
	Kind              string        `yaml:"kind" json:"kind" validate:"generative_kind"`
	URL               string        `yaml:"url" json:"url,omitempty" validate:"required_if=Kind remote,omitempty,url"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout" validate:"gte=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second" validate:"gte=0"`
	Forbidden         string        `yaml:"forbidden" json:"forbidden,omitempty"`
}

type OracleConfig struct {
	Kind              string  `yaml:"kind" json:"kind" validate:"oracle_kind"`
	URL               string  `yaml:"url" json:"url,omitempty" validate:"required_if=Kind http,omitempty,url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" validate:"gte=0"`
	// Target, CDRWeight, Noise and Latency configure the synthetic landscape.
	Target    string        `yaml:"target" json:"target,omitempty" validate:"required_if=Kind synthetic"`
	CDRWeight float64       `yaml:"cdr_weight" json:"cdr_weight" validate:"gte=0"`
	Noise     float64       `yaml:"noise" json:"noise" validate:"gte=0"`
	Latency   time.Duration `yaml:"latency" json:"latency" validate:"gte=0"`
}

type StorageConfig struct {
	Backend string `yaml:"backend" json:"backend" validate:"oneof=memory sqlite badger"`
	Path    string `yaml:"path" json:"path,omitempty"`
}

func Default() Config {
	return Config{
		Sequence: SequenceConfig{
			Alphabet:  "ACDEFGHIKLMNPQRSTVWY",
			MinLength: 90,
			MaxLength: 140,
			Scheme:    "anchor",
		},
		Acquisition: AcquisitionConfig{Kind: "ucb", Coefficient: 2},
		Campaign: CampaignConfig{
			BatchSize:            8,
			OracleBudget:         96,
			MaxRounds:            0,
			MinEvaluated:         4,
			DiversityThreshold:   1,
			ConvergencePatience:  3,
			ConvergenceThreshold: 1e-3,
			ProposalMultiplier:   8,
			SeedCount:            4,
			ExhaustionTolerance:  2,
			Workers:              4,
			OracleTimeout:        10 * time.Minute,
			RefitPolicy:          "full",
			Seed:                 1,
		},
		Proposer: ProposerConfig{
			Temperature:  1,
			MutationRate: 0.02,
			MaxMutations: 3,
			CDRWeight:    4,
			RetryBudget:  5,
		},
		Surrogate: SurrogateConfig{
			LengthScale:    0,
			SignalVariance: 1,
			NoiseVariance:  1e-2,
		},
		Embedding:  EmbeddingConfig{Kind: "onehot"},
		Generative: GenerativeConfig{Kind: "substitution", Timeout: time.Minute, Forbidden: "C"},
		Oracle:     OracleConfig{Kind: "synthetic", CDRWeight: 3, Noise: 0.01},
		Storage:    StorageConfig{Backend: "badger", Path: "clonebo-data"},
	}
}

// Load reads a YAML file onto Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigurationError{Reason: "parse " + path, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// registries maps custom validation tags to the ids the owning package
// can build.
var registries = map[string]func() []string{
	"numbering_scheme": numbering.Schemes,
	"acquisition_kind": acquisition.Kinds,
	"generative_kind":  generative.Kinds,
	"oracle_kind":      oracle.Kinds,
}

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	for tag, ids := range registries {
		err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return slices.Contains(ids(), fl.Field().String())
		})
		if err != nil {
			panic(err)
		}
	}
	return v
}

// Validate applies field rules and cross-field rules. The returned error is
// a *ConfigurationError naming the first offending field.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ConfigurationError{
				Field:  fieldPath(fe.Namespace()),
				Reason: describe(fe),
				Err:    err,
			}
		}
		return &ConfigurationError{Reason: err.Error(), Err: err}
	}
	if c.Campaign.RefitPolicy == "window" && c.Campaign.RefitWindow <= 0 {
		return Errorf("campaign.refit_window", "must be > 0 with the window refit policy")
	}
	if c.Campaign.MinEvaluated > c.Campaign.OracleBudget {
		return Errorf("campaign.min_evaluated", "%d exceeds oracle budget %d; the surrogate would never be consulted", c.Campaign.MinEvaluated, c.Campaign.OracleBudget)
	}
	forbidden := strings.ToUpper(c.Generative.Forbidden)
	allowed := 0
	for _, r := range strings.ToUpper(c.Sequence.Alphabet) {
		if !strings.ContainsRune(forbidden, r) {
			allowed++
		}
	}
	if allowed < 2 {
		return Errorf("generative.forbidden", "leaves fewer than two residues to sample")
	}
	return nil
}

// Settings returns the configuration as a generic map for persistence
// alongside a campaign.
func (c Config) Settings() map[string]any {
	data, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prev := rune(s[i-1])
			nextLower := i+1 < len(s) && s[i+1] >= 'a' && s[i+1] <= 'z'
			if (prev >= 'a' && prev <= 'z') || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func describe(fe validator.FieldError) string {
	if ids, ok := registries[fe.Tag()]; ok {
		return fmt.Sprintf("must be one of [%s], got %q", strings.Join(ids(), " "), fe.Value())
	}
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "gt", "gte", "lt", "lte":
		return fmt.Sprintf("must be %s %s, got %v", comparison(fe.Tag()), fe.Param(), fe.Value())
	case "ltefield":
		return fmt.Sprintf("must not exceed %s, got %v", snake(fe.Param()), fe.Value())
	case "gtefield":
		return fmt.Sprintf("must not be below %s, got %v", snake(fe.Param()), fe.Value())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func comparison(tag string) string {
	switch tag {
	case "gt":
		return ">"
	case "gte":
		return ">="
	case "lt":
		return "<"
	default:
		return "<="
	}
}
