package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type SlackConfig struct {
	BotToken  string   `env:"SLACK_BOT_TOKEN,required,notEmpty"`
	AppToken  string   `env:"SLACK_APP_TOKEN,required,notEmpty"`
	Command   string   `env:"ORDERSYNC_SLACK_COMMAND" envDefault:"/syncorders"`
	AllowFrom []string `env:"SLACK_ALLOW_FROM" envSeparator:","`
}

type DiscordConfig struct {
	Token     string   `env:"DISCORD_BOT_TOKEN"`
	GuildID   string   `env:"DISCORD_GUILD_ID"`
	Command   string   `env:"ORDERSYNC_DISCORD_COMMAND" envDefault:"syncorders"`
	AllowFrom []string `env:"DISCORD_ALLOW_FROM" envSeparator:","`
}

func (c DiscordConfig) Enabled() bool { return strings.TrimSpace(c.Token) != "" }

type TelegramConfig struct {
	Token     string   `env:"TELEGRAM_BOT_TOKEN"`
	Command   string   `env:"ORDERSYNC_TELEGRAM_COMMAND" envDefault:"/syncorders"`
	AllowFrom []string `env:"TELEGRAM_ALLOW_FROM" envSeparator:","`
}

func (c TelegramConfig) Enabled() bool { return strings.TrimSpace(c.Token) != "" }

type ShopifyConfig struct {
	StoreDomain string        `env:"SHOPIFY_STORE_DOMAIN,required,notEmpty"`
	AccessToken string        `env:"SHOPIFY_ACCESS_TOKEN,required,notEmpty"`
	APIVersion  string        `env:"SHOPIFY_API_VERSION,required,notEmpty"`
	MinGap      time.Duration `env:"ORDERSYNC_SHOPIFY_MIN_GAP" envDefault:"400ms"`
	Timeout     time.Duration `env:"ORDERSYNC_SHOPIFY_TIMEOUT" envDefault:"30s"`
}

type SheetsConfig struct {
	ServiceAccountEmail string `env:"GOOGLE_SERVICE_ACCOUNT_EMAIL,required,notEmpty"`
	PrivateKey          string `env:"GOOGLE_PRIVATE_KEY,required,notEmpty"`
	SpreadsheetID       string `env:"GOOGLE_SHEET_ID,required,notEmpty"`
	TabName             string `env:"GOOGLE_SHEET_TAB" envDefault:"Sheet1"`
}

// PrivateKeyPEM restores newlines that were escaped to fit the key into a
// single environment variable.
func (c SheetsConfig) PrivateKeyPEM() []byte {
	return []byte(strings.ReplaceAll(c.PrivateKey, `\n`, "\n"))
}

type SyncConfig struct {
	LogPath        string `env:"ORDERSYNC_RUN_LOG" envDefault:"data/sync-log.json"`
	FieldsFile     string `env:"ORDERSYNC_FIELDS_FILE"`
	Schedule       string `env:"ORDERSYNC_SCHEDULE"`
	ScheduleTarget string `env:"ORDERSYNC_SCHEDULE_TARGET"`
	StatePath      string `env:"ORDERSYNC_STATE" envDefault:"data/state.json"`
}

type LogConfig struct {
	Level      string `env:"ORDERSYNC_LOG_LEVEL" envDefault:"info"`
	File       string `env:"ORDERSYNC_LOG_FILE"`
	MaxSizeMB  int    `env:"ORDERSYNC_LOG_MAX_SIZE_MB" envDefault:"10"`
	MaxBackups int    `env:"ORDERSYNC_LOG_MAX_BACKUPS" envDefault:"3"`
}

type Config struct {
	Slack    SlackConfig
	Discord  DiscordConfig
	Telegram TelegramConfig
	Shopify  ShopifyConfig
	Sheets   SheetsConfig
	Sync     SyncConfig
	Log      LogConfig
	Fields   FieldMapping
}

// MissingError lists every required setting that was absent or empty.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return "missing required configuration: " + strings.Join(e.Keys, ", ")
}

// Load parses the full gateway configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	var missing []string
	var errs []error

	collect := func(err error) {
		keys, rest := splitMissing(err)
		missing = append(missing, keys...)
		if rest != nil {
			errs = append(errs, rest)
		}
	}

	collect(env.Parse(&cfg.Slack))
	collect(env.Parse(&cfg.Discord))
	collect(env.Parse(&cfg.Telegram))
	collect(env.Parse(&cfg.Shopify))
	collect(env.Parse(&cfg.Sheets))
	collect(env.Parse(&cfg.Sync))
	collect(env.Parse(&cfg.Log))

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingError{Keys: missing}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	fields, err := LoadFieldMapping(cfg.Sync.FieldsFile)
	if err != nil {
		return nil, err
	}
	cfg.Fields = fields
	return cfg, nil
}

// LoadShopify parses only the Shopify section, for commands that do not
// need the chat or sheet credentials.
func LoadShopify() (ShopifyConfig, error) {
	return parseSection[ShopifyConfig]()
}

func LoadSheets() (SheetsConfig, error) {
	return parseSection[SheetsConfig]()
}

func LoadSync() (SyncConfig, error) {
	return parseSection[SyncConfig]()
}

func LoadLog() (LogConfig, error) {
	return parseSection[LogConfig]()
}

func parseSection[T any]() (T, error) {
	section, err := env.ParseAs[T]()
	if err == nil {
		return section, nil
	}
	keys, rest := splitMissing(err)
	if len(keys) > 0 {
		sort.Strings(keys)
		return section, &MissingError{Keys: keys}
	}
	return section, rest
}

// splitMissing separates "required variable not set" failures from every
// other parse error.
func splitMissing(err error) ([]string, error) {
	if err == nil {
		return nil, nil
	}
	var agg env.AggregateError
	if !errors.As(err, &agg) {
		return nil, err
	}

	var keys []string
	var rest []error
	for _, e := range agg.Errors {
		var notSet env.EnvVarIsNotSetError
		var empty env.EmptyEnvVarError
		switch {
		case errors.As(e, &notSet):
			keys = append(keys, notSet.Key)
		case errors.As(e, &empty):
			keys = append(keys, empty.Key)
		default:
			rest = append(rest, e)
		}
	}
	return keys, errors.Join(rest...)
}

// FieldMapping names the sheet columns and the metafield keys that feed them.
type FieldMapping struct {
	InputColumn      string `yaml:"input_column"`
	OutputColumns    string `yaml:"output_columns"`
	PackingSlipNotes string `yaml:"packing_slip_notes"`
	ContactOwner     string `yaml:"contact_responsibility"`
	FulfillmentType  string `yaml:"fulfillment_method"`
	PaidInFull       string `yaml:"paid_in_full"`
}

func DefaultFieldMapping() FieldMapping {
	return FieldMapping{
		InputColumn:      "B",
		OutputColumns:    "D:G",
		PackingSlipNotes: "custom.packing_slip_notes",
		ContactOwner:     "custom.contact_responsibility",
		FulfillmentType:  "custom.fulfillment_method",
		PaidInFull:       "custom.paid_in_full",
	}
}

// Keys returns the metafield keys in output-column order.
func (m FieldMapping) Keys() [4]string {
	return [4]string{m.PackingSlipNotes, m.ContactOwner, m.FulfillmentType, m.PaidInFull}
}

// LoadFieldMapping reads an optional YAML override on top of the defaults.
// An empty path returns the defaults.
func LoadFieldMapping(path string) (FieldMapping, error) {
	mapping := DefaultFieldMapping()
	path = strings.TrimSpace(path)
	if path == "" {
		return mapping, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return mapping, fmt.Errorf("read fields file %s: %w", path, err)
	}
	var override FieldMapping
	if err := yaml.Unmarshal(data, &override); err != nil {
		return mapping, fmt.Errorf("parse fields file %s: %w", path, err)
	}

	setIfPresent(&mapping.InputColumn, override.InputColumn)
	setIfPresent(&mapping.OutputColumns, override.OutputColumns)
	setIfPresent(&mapping.PackingSlipNotes, override.PackingSlipNotes)
	setIfPresent(&mapping.ContactOwner, override.ContactOwner)
	setIfPresent(&mapping.FulfillmentType, override.FulfillmentType)
	setIfPresent(&mapping.PaidInFull, override.PaidInFull)

	if err := mapping.Validate(); err != nil {
		return mapping, fmt.Errorf("fields file %s: %w", path, err)
	}
	return mapping, nil
}

func (m FieldMapping) Validate() error {
	first, last, ok := strings.Cut(m.OutputColumns, ":")
	if !ok || !isColumnName(first) || !isColumnName(last) {
		return fmt.Errorf("output_columns must look like D:G, got %q", m.OutputColumns)
	}
	if columnNumber(last)-columnNumber(first) != 3 {
		return fmt.Errorf("output_columns must span exactly four columns, got %q", m.OutputColumns)
	}
	if !isColumnName(m.InputColumn) {
		return fmt.Errorf("input_column must be a column letter, got %q", m.InputColumn)
	}
	return nil
}

func setIfPresent(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

func columnNumber(s string) int {
	n := 0
	for _, r := range s {
		n = n*26 + int(r-'A'+1)
	}
	return n
}

func isColumnName(s string) bool {
	if s == "" || len(s) > 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
