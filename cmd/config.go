package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rqc"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage rqc configuration.

Running bare 'rqc config' is the same as 'rqc config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# rqc configuration
# See: rqc config show (for effective values and sources)

# SQLite database path (default: ~/.config/rqc/rqc.db)
# db_path: {{ .DBPath }}

log:
  # debug, info, warn, error
  level: "{{ .LogLevel }}"
  # auto (text on a terminal, json otherwise), text, json
  format: "{{ .LogFormat }}"

backend:
  # Generation and review provider: anthropic or gemini
  provider: "{{ .Provider }}"

anthropic:
  # API key (or set ANTHROPIC_API_KEY)
  api_key: ""
  model: "{{ .AnthropicModel }}"

gemini:
  # API key (or set GEMINI_API_KEY)
  api_key: ""
  model: "{{ .GeminiModel }}"

features:
  # Global switch for the reviewer panel; per-user plans still apply
  rqc: {{ .RQC }}
  # Honor per-user custom style prompts
  custom_prompt: {{ .CustomPrompt }}

review:
  temperature: {{ .ReviewTemperature }}
  max_tokens: {{ .ReviewMaxTokens }}
  # Reviewer model override (default: the backend model)
  model: "{{ .ReviewModel }}"
  cents_per_1k_tokens: {{ .CentsPer1K }}

orchestrator:
  # Deadline for one review cycle, excluding the fallback (0 = none)
  cycle_timeout: "{{ .CycleTimeout }}"
  fallback_timeout: "{{ .FallbackTimeout }}"
  # Upper bound on writing one telemetry record
  telemetry_timeout: "{{ .TelemetryTimeout }}"

# Generation model per plan, e.g.
# plan_models:
#   plus: claude-sonnet-4-5
`

type configTemplateData struct {
	DBPath            string
	LogLevel          string
	LogFormat         string
	Provider          string
	AnthropicModel    string
	GeminiModel       string
	RQC               bool
	CustomPrompt      bool
	ReviewTemperature float64
	ReviewMaxTokens   int
	ReviewModel       string
	CentsPer1K        float64
	CycleTimeout      string
	FallbackTimeout   string
	TelemetryTimeout  string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		DBPath:            viper.GetString("db_path"),
		LogLevel:          viper.GetString("log.level"),
		LogFormat:         viper.GetString("log.format"),
		Provider:          viper.GetString("backend.provider"),
		AnthropicModel:    viper.GetString("anthropic.model"),
		GeminiModel:       viper.GetString("gemini.model"),
		RQC:               viper.GetBool("features.rqc"),
		CustomPrompt:      viper.GetBool("features.custom_prompt"),
		ReviewTemperature: viper.GetFloat64("review.temperature"),
		ReviewMaxTokens:   viper.GetInt("review.max_tokens"),
		ReviewModel:       viper.GetString("review.model"),
		CentsPer1K:        viper.GetFloat64("review.cents_per_1k_tokens"),
		CycleTimeout:      viper.GetDuration("orchestrator.cycle_timeout").String(),
		FallbackTimeout:   viper.GetDuration("orchestrator.fallback_timeout").String(),
		TelemetryTimeout:  viper.GetDuration("orchestrator.telemetry_timeout").String(),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := renameio.WriteFile(cfgPath, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "db_path", EnvVar: "RQC_DB_PATH"},
	{Key: "log.level", EnvVar: "RQC_LOG_LEVEL"},
	{Key: "log.format", EnvVar: "RQC_LOG_FORMAT"},
	{Key: "backend.provider", EnvVar: "RQC_BACKEND_PROVIDER"},
	{Key: "anthropic.api_key", EnvVar: "RQC_ANTHROPIC_API_KEY"},
	{Key: "anthropic.model", EnvVar: "RQC_ANTHROPIC_MODEL"},
	{Key: "gemini.api_key", EnvVar: "RQC_GEMINI_API_KEY"},
	{Key: "gemini.model", EnvVar: "RQC_GEMINI_MODEL"},
	{Key: "features.rqc", EnvVar: "RQC_FEATURES_RQC"},
	{Key: "features.custom_prompt", EnvVar: "RQC_FEATURES_CUSTOM_PROMPT"},
	{Key: "review.temperature", EnvVar: "RQC_REVIEW_TEMPERATURE"},
	{Key: "review.max_tokens", EnvVar: "RQC_REVIEW_MAX_TOKENS"},
	{Key: "review.model", EnvVar: "RQC_REVIEW_MODEL"},
	{Key: "review.cents_per_1k_tokens", EnvVar: "RQC_REVIEW_CENTS_PER_1K_TOKENS"},
	{Key: "orchestrator.cycle_timeout", EnvVar: "RQC_ORCHESTRATOR_CYCLE_TIMEOUT"},
	{Key: "orchestrator.fallback_timeout", EnvVar: "RQC_ORCHESTRATOR_FALLBACK_TIMEOUT"},
	{Key: "orchestrator.telemetry_timeout", EnvVar: "RQC_ORCHESTRATOR_TELEMETRY_TIMEOUT"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if isSecretKey(k.Key) {
			val = maskSecret(viper.GetString(k.Key))
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-32s %v  %s\n", k.Key, val, source)
	}

	return nil
}

func isSecretKey(key string) bool {
	return strings.HasSuffix(key, "api_key")
}

// maskSecret keeps only the last four characters of a secret.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'rqc config init' first)", cfgPath)
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
