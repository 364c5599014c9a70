package stewardd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for stewardd.
type Config struct {
	ListenAddress string            `yaml:"listen"`
	CycleInterval Duration          `yaml:"cycle_interval"`
	AutoExecute   bool              `yaml:"auto_execute"`
	PauseOnStart  bool              `yaml:"pause"`
	Chain         ChainConfig       `yaml:"chain"`
	Policy        PolicyConfig      `yaml:"policy"`
	Scores        ScoresConfig      `yaml:"scores"`
	Bridge        BridgeConfig      `yaml:"bridge"`
	Audit         AuditConfig       `yaml:"audit"`
	Admin         AdminConfig       `yaml:"admin"`
}

// ChainConfig configures access to the treasury chain.
type ChainConfig struct {
	RPCURL          string   `yaml:"rpc_url"`
	ChainID         int64    `yaml:"chain_id"`
	RegistryAddress string   `yaml:"registry"`
	VaultAddress    string   `yaml:"vault"`
	SignerKey       string   `yaml:"signer_key"`
	SignerKeyFile   string   `yaml:"signer_key_file"`
	SignerKeyEnv    string   `yaml:"signer_key_env"`
	Confirmations   int      `yaml:"confirmations"`
	PollInterval    Duration `yaml:"poll_interval"`
}

// PolicyConfig controls policy parsing behaviour.
type PolicyConfig struct {
	// AllowFallback opts in to substituting the conservative default policy
	// when a program's policy document does not parse. Disabled, a malformed
	// policy skips the program instead.
	AllowFallback bool `yaml:"allow_fallback"`
}

// ScoresConfig locates per-program submission scores.
type ScoresConfig struct {
	// Dir holds one <programID>.json score file per program.
	Dir string `yaml:"dir"`
}

// BridgeConfig configures the cross-chain settlement facilitator.
type BridgeConfig struct {
	BaseURL       string `yaml:"base_url"`
	Network       string `yaml:"network"`
	Mock          bool   `yaml:"mock"`
	Threshold     string `yaml:"threshold"`
	SignerKey     string `yaml:"signer_key"`
	SignerKeyFile string `yaml:"signer_key_file"`
	SignerKeyEnv  string `yaml:"signer_key_env"`
	TokenName     string `yaml:"token_name"`
	TokenVersion  string `yaml:"token_version"`
	TokenAddress  string `yaml:"token_address"`
	ChainID       int64  `yaml:"chain_id"`
}

// AuditConfig selects the audit trail backend.
type AuditConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// AdminConfig captures security settings for the admin API.
type AdminConfig struct {
	BearerToken     string `yaml:"bearer_token"`
	BearerTokenFile string `yaml:"bearer_token_file"`
}

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := resolveSecret(&cfg.Chain.SignerKey, cfg.Chain.SignerKeyEnv, cfg.Chain.SignerKeyFile); err != nil {
		return cfg, fmt.Errorf("chain signer: %w", err)
	}
	if err := resolveSecret(&cfg.Bridge.SignerKey, cfg.Bridge.SignerKeyEnv, cfg.Bridge.SignerKeyFile); err != nil {
		return cfg, fmt.Errorf("bridge signer: %w", err)
	}
	if err := cfg.Admin.normalise(); err != nil {
		return cfg, fmt.Errorf("admin security: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.CycleInterval.Duration == 0 {
		cfg.CycleInterval.Duration = time.Minute
	}
	if cfg.Chain.Confirmations <= 0 {
		cfg.Chain.Confirmations = 1
	}
	if cfg.Chain.PollInterval.Duration == 0 {
		cfg.Chain.PollInterval.Duration = 3 * time.Second
	}
	if cfg.Bridge.Network == "" {
		cfg.Bridge.Network = "cronos-testnet"
	}
	if cfg.Bridge.Threshold == "" {
		cfg.Bridge.Threshold = "100"
	}
	if cfg.Bridge.TokenName == "" {
		cfg.Bridge.TokenName = "devUSDC.e"
	}
	if cfg.Bridge.TokenVersion == "" {
		cfg.Bridge.TokenVersion = "1"
	}
	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = "memory"
	}
	if cfg.Scores.Dir == "" {
		cfg.Scores.Dir = "scores"
	}
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Chain.RPCURL) == "" {
		return fmt.Errorf("chain rpc_url must be configured")
	}
	if strings.TrimSpace(cfg.Chain.RegistryAddress) == "" {
		return fmt.Errorf("registry address must be configured")
	}
	if cfg.AutoExecute {
		if strings.TrimSpace(cfg.Chain.VaultAddress) == "" {
			return fmt.Errorf("vault address must be configured when auto_execute is enabled")
		}
		if strings.TrimSpace(cfg.Chain.SignerKey) == "" {
			return fmt.Errorf("chain signer key must be configured when auto_execute is enabled")
		}
		if !cfg.Bridge.Mock && strings.TrimSpace(cfg.Bridge.SignerKey) == "" {
			return fmt.Errorf("bridge signer key must be configured when auto_execute is enabled without mock mode")
		}
	}
	switch cfg.Audit.Backend {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(cfg.Audit.Path) == "" {
			return fmt.Errorf("audit path must be configured for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown audit backend %q", cfg.Audit.Backend)
	}
	return nil
}

// resolveSecret fills target from the env var or file reference when the
// inline value is empty. All of them empty is allowed; read-only deployments
// run without signing keys.
func resolveSecret(target *string, envName, filePath string) error {
	*target = strings.TrimSpace(*target)
	if *target != "" {
		return nil
	}
	if envName = strings.TrimSpace(envName); envName != "" {
		value := strings.TrimSpace(os.Getenv(envName))
		if value == "" {
			return fmt.Errorf("env %s is empty", envName)
		}
		*target = value
		return nil
	}
	if filePath = strings.TrimSpace(filePath); filePath != "" {
		contents, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("read key file: %w", err)
		}
		*target = strings.TrimSpace(string(contents))
	}
	return nil
}

func (a *AdminConfig) normalise() error {
	if a == nil {
		return fmt.Errorf("admin configuration missing")
	}
	token := strings.TrimSpace(a.BearerToken)
	if path := strings.TrimSpace(a.BearerTokenFile); path != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read bearer_token_file: %w", err)
		}
		token = strings.TrimSpace(string(contents))
	}
	a.BearerToken = token
	return nil
}
