package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the bot configuration, read once at startup.
type Config struct {
	Bot      Bot      `mapstructure:"bot"`
	Telegram Telegram `mapstructure:"telegram"`
	Handler  Handler  `mapstructure:"handler"`
	Storage  Storage  `mapstructure:"storage"`
	Minio    Minio    `mapstructure:"minio"`
	Model    Model    `mapstructure:"model"`
	Transfer Transfer `mapstructure:"transfer"`
	Metrics  Metrics  `mapstructure:"metrics"`
}

type Bot struct {
	LogLevel string `mapstructure:"log_level"`
	LockFile string `mapstructure:"lock_file"`
}

type Telegram struct {
	BotToken       string  `mapstructure:"bot_token"`
	AllowedChatIDs []int64 `mapstructure:"allowed_chat_ids"`
	AdminChatIDs   []int64 `mapstructure:"admin_chat_ids"`
	AdminUsername  string  `mapstructure:"admin_username"`
}

type Handler struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type Storage struct {
	ImageDir  string `mapstructure:"image_dir"`
	OutputDir string `mapstructure:"output_dir"`
}

// Minio configures the optional result archive. It is disabled when Endpoint is empty.
type Minio struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

func (m Minio) Enabled() bool {
	return m.Endpoint != ""
}

type Model struct {
	Path   string `mapstructure:"path"`
	Layers []int  `mapstructure:"layers"`
}

type Transfer struct {
	ImageSize       int           `mapstructure:"image_size"`
	Iterations      int           `mapstructure:"iterations"`
	LearningRate    float64       `mapstructure:"learning_rate"`
	Alpha           float64       `mapstructure:"alpha"`
	Beta            float64       `mapstructure:"beta"`
	CheckpointEvery int           `mapstructure:"checkpoint_every"`
	Workers         int           `mapstructure:"workers"`
	QueueSize       int           `mapstructure:"queue_size"`
	// StepBudget is the expected wall time of one optimization step on the target host.
	StepBudget time.Duration `mapstructure:"step_budget"`
	// Timeout bounds one transfer. Zero derives it from Iterations and StepBudget.
	Timeout time.Duration `mapstructure:"timeout"`
}

// Budget is the time Iterations steps are expected to take.
func (t Transfer) Budget() time.Duration {
	return time.Duration(t.Iterations) * t.StepBudget
}

// Metrics configures the prometheus endpoint. It is disabled when Listen is empty.
type Metrics struct {
	Listen string `mapstructure:"listen"`
}

var defaults = map[string]any{
	"bot.log_level":             "info",
	"bot.lock_file":             "nstbot.lock",
	"handler.timeout":           "30s",
	"storage.image_dir":         "images",
	"storage.output_dir":        "results",
	"minio.bucket":              "nstbot-results",
	"model.path":                "model/vgg19.nstw",
	"model.layers":              []int{0, 5, 10, 19, 28},
	"transfer.image_size":       128,
	"transfer.iterations":       500,
	"transfer.learning_rate":    0.004,
	"transfer.alpha":            8.0,
	"transfer.beta":             70.0,
	"transfer.checkpoint_every": 100,
	"transfer.workers":          1,
	"transfer.queue_size":       8,
	"transfer.step_budget":      "8s",
	"transfer.timeout":          "0s",
	"metrics.listen":            "",
}

// legacyEnv maps the environment variables of earlier deployments onto config keys.
var legacyEnv = map[string]string{
	"telegram.bot_token":     "TG_BOT_TOKEN",
	"transfer.image_size":    "IMAGE_SIZE",
	"transfer.iterations":    "EPOCHS",
	"transfer.learning_rate": "LR",
	"transfer.alpha":         "ALPHA",
	"transfer.beta":          "BETA",
}

// Load reads the TOML file at path. An empty path looks for config.toml in the working directory. Environment
// variables override file values, either as NSTBOT_SECTION_KEY or under their legacy names.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("nstbot")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "NSTBOT_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("could not bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}

	if cfg.Transfer.Timeout == 0 {
		cfg.Transfer.Timeout = cfg.Transfer.Budget()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values that would otherwise fail late, inside a running transfer.
func (c *Config) Validate() error {
	var errs []error

	if c.Telegram.BotToken == "" {
		errs = append(errs, errors.New("telegram.bot_token is required"))
	}
	if c.Handler.Timeout <= 0 {
		errs = append(errs, errors.New("handler.timeout must be positive"))
	}
	if c.Storage.ImageDir == "" || c.Storage.OutputDir == "" {
		errs = append(errs, errors.New("storage.image_dir and storage.output_dir are required"))
	}
	if c.Model.Path == "" {
		errs = append(errs, errors.New("model.path is required"))
	}
	if len(c.Model.Layers) == 0 {
		errs = append(errs, errors.New("model.layers must name at least one layer"))
	}
	for _, l := range c.Model.Layers {
		if l < 0 {
			errs = append(errs, fmt.Errorf("model.layers contains negative index %d", l))
		}
	}

	t := c.Transfer
	if t.ImageSize <= 0 {
		errs = append(errs, fmt.Errorf("transfer.image_size must be positive, got %d", t.ImageSize))
	}
	if t.Iterations <= 0 {
		errs = append(errs, fmt.Errorf("transfer.iterations must be positive, got %d", t.Iterations))
	}
	if t.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("transfer.learning_rate must be positive, got %g", t.LearningRate))
	}
	if t.Alpha <= 0 || t.Beta <= 0 {
		errs = append(errs, fmt.Errorf("transfer.alpha and transfer.beta must be positive, got %g and %g", t.Alpha, t.Beta))
	}
	if t.CheckpointEvery < 0 {
		errs = append(errs, fmt.Errorf("transfer.checkpoint_every must not be negative, got %d", t.CheckpointEvery))
	}
	if t.Workers <= 0 || t.QueueSize <= 0 {
		errs = append(errs, errors.New("transfer.workers and transfer.queue_size must be positive"))
	}
	if t.StepBudget <= 0 {
		errs = append(errs, errors.New("transfer.step_budget must be positive"))
	}
	if t.Timeout <= 0 {
		errs = append(errs, errors.New("transfer.timeout must be positive"))
	}

	if c.Minio.Enabled() && c.Minio.Bucket == "" {
		errs = append(errs, errors.New("minio.bucket is required when minio.endpoint is set"))
	}

	return errors.Join(errs...)
}
