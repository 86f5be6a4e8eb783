package clonebo

import (
	"log/slog"

	"clonebo/internal/acquisition"
	"clonebo/internal/campaign"
	"clonebo/internal/config"
	"clonebo/internal/embed"
	"clonebo/internal/generative"
	"clonebo/internal/numbering"
	"clonebo/internal/oracle"
	"clonebo/internal/propose"
	"clonebo/internal/surrogate"
	"clonebo/internal/validate"
)

// NewValidator builds the sequence validator described by cfg.
func NewValidator(cfg config.SequenceConfig) (*validate.Validator, error) {
	numberer, err := numbering.Resolve(cfg.Scheme)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "sequence.scheme", Reason: "unknown numbering scheme", Err: err}
	}
	v, err := validate.NewValidator(cfg.Alphabet, cfg.MinLength, cfg.MaxLength, numberer)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "sequence", Reason: err.Error(), Err: err}
	}
	return v, nil
}

// buildController wires every campaign component from a validated config.
func buildController(cfg config.Config, deps campaign.Config, logger *slog.Logger) (*campaign.Controller, error) {
	validator, err := NewValidator(cfg.Sequence)
	if err != nil {
		return nil, err
	}

	gen, err := generative.New(generative.Options{
		Kind:              cfg.Generative.Kind,
		Seed:              cfg.Campaign.Seed,
		Forbidden:         cfg.Generative.Forbidden,
		URL:               cfg.Generative.URL,
		Timeout:           cfg.Generative.Timeout,
		RequestsPerSecond: cfg.Generative.RequestsPerSecond,
		Logger:            logger,
	})
	if err != nil {
		return nil, &config.ConfigurationError{Field: "generative", Reason: err.Error(), Err: err}
	}

	embedder, err := buildEmbedder(cfg, validator, logger)
	if err != nil {
		return nil, err
	}

	gp, err := surrogate.NewGaussianProcess(cfg.Surrogate.LengthScale, cfg.Surrogate.SignalVariance, cfg.Surrogate.NoiseVariance)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "surrogate", Reason: err.Error(), Err: err}
	}

	acq, err := acquisition.Resolve(cfg.Acquisition.Kind, cfg.Acquisition.Coefficient)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "acquisition.kind", Reason: err.Error(), Err: err}
	}

	proposer, err := propose.New(propose.Config{
		Model:               gen,
		Temperature:         cfg.Proposer.Temperature,
		MutationRate:        cfg.Proposer.MutationRate,
		MaxMutations:        cfg.Proposer.MaxMutations,
		CDRWeight:           cfg.Proposer.CDRWeight,
		RetryBudget:         cfg.Proposer.RetryBudget,
		MinLogLikelihood:    cfg.Proposer.MinLogLikelihood,
		UnconditionalLength: cfg.Sequence.MaxLength,
		Seed:                cfg.Campaign.Seed,
		Logger:              logger,
	})
	if err != nil {
		return nil, &config.ConfigurationError{Field: "proposer", Reason: err.Error(), Err: err}
	}

	orc, err := buildOracle(cfg, validator, logger)
	if err != nil {
		return nil, err
	}

	deps.Validator = validator
	deps.Embedder = embedder
	deps.Surrogate = gp
	deps.Acquisition = acq
	deps.Proposer = proposer
	deps.Oracle = orc
	deps.Logger = logger
	deps.BatchSize = cfg.Campaign.BatchSize
	deps.OracleBudget = cfg.Campaign.OracleBudget
	deps.MaxRounds = cfg.Campaign.MaxRounds
	deps.MinEvaluated = cfg.Campaign.MinEvaluated
	deps.DiversityThreshold = cfg.Campaign.DiversityThreshold
	deps.ConvergencePatience = cfg.Campaign.ConvergencePatience
	deps.ConvergenceThreshold = cfg.Campaign.ConvergenceThreshold
	deps.ProposalMultiplier = cfg.Campaign.ProposalMultiplier
	deps.SeedCount = cfg.Campaign.SeedCount
	deps.ExhaustionTolerance = cfg.Campaign.ExhaustionTolerance
	deps.OracleTimeout = cfg.Campaign.OracleTimeout
	deps.Workers = cfg.Campaign.Workers
	deps.RefitPolicy = cfg.Campaign.RefitPolicy
	deps.RefitWindow = cfg.Campaign.RefitWindow
	deps.Seed = cfg.Campaign.Seed
	deps.Settings = cfg.Settings()
	return campaign.New(deps)
}

// buildEmbedder sizes the one-hot encoding from the validator's canonical
// alphabet so every accepted residue has a column.
func buildEmbedder(cfg config.Config, validator *validate.Validator, logger *slog.Logger) (embed.Embedder, error) {
	switch cfg.Embedding.Kind {
	case "", "onehot":
		e, err := embed.NewOneHotEmbedder(validator.Alphabet(), cfg.Sequence.MaxLength)
		if err != nil {
			return nil, &config.ConfigurationError{Field: "embedding", Reason: err.Error(), Err: err}
		}
		return e, nil
	case "remote":
		if cfg.Generative.URL == "" {
			return nil, config.Errorf("embedding.kind", "remote embedding needs generative.url")
		}
		source, err := generative.NewRemoteModel(generative.RemoteOptions{
			BaseURL:           cfg.Generative.URL,
			Timeout:           cfg.Generative.Timeout,
			RequestsPerSecond: cfg.Generative.RequestsPerSecond,
			Logger:            logger,
		})
		if err != nil {
			return nil, &config.ConfigurationError{Field: "generative.url", Reason: err.Error(), Err: err}
		}
		e, err := embed.NewRemoteEmbedder(source, cfg.Embedding.Dim, cfg.Sequence.MaxLength)
		if err != nil {
			return nil, &config.ConfigurationError{Field: "embedding", Reason: err.Error(), Err: err}
		}
		return e, nil
	default:
		return nil, config.Errorf("embedding.kind", "unknown embedding %q", cfg.Embedding.Kind)
	}
}

func buildOracle(cfg config.Config, validator *validate.Validator, logger *slog.Logger) (oracle.Oracle, error) {
	switch cfg.Oracle.Kind {
	case oracle.KindSynthetic:
		target, err := validator.Validate(cfg.Oracle.Target)
		if err != nil {
			return nil, &config.ConfigurationError{Field: "oracle.target", Reason: "invalid target sequence", Err: err}
		}
		o, err := oracle.NewSyntheticOracle(oracle.SyntheticConfig{
			Target:      target,
			CDRWeight:   cfg.Oracle.CDRWeight,
			NoiseStdDev: cfg.Oracle.Noise,
			Latency:     cfg.Oracle.Latency,
			Seed:        cfg.Campaign.Seed,
		})
		if err != nil {
			return nil, &config.ConfigurationError{Field: "oracle", Reason: err.Error(), Err: err}
		}
		return o, nil
	case oracle.KindHTTP:
		o, err := oracle.NewHTTPOracle(oracle.HTTPConfig{
			URL:               cfg.Oracle.URL,
			RequestsPerSecond: cfg.Oracle.RequestsPerSecond,
			Logger:            logger,
		})
		if err != nil {
			return nil, &config.ConfigurationError{Field: "oracle.url", Reason: err.Error(), Err: err}
		}
		return o, nil
	default:
		return nil, config.Errorf("oracle.kind", "unknown oracle %q", cfg.Oracle.Kind)
	}
}
