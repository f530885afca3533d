// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete rigchat configuration.
type Config struct {
	Server    ServerConfig    `toml:"server" yaml:"server" json:"server"`
	Transport TransportConfig `toml:"transport" yaml:"transport" json:"transport"`
	History   HistoryConfig   `toml:"history" yaml:"history" json:"history"`
	UI        UIConfig        `toml:"ui" yaml:"ui" json:"ui"`
	Log       LogConfig       `toml:"log" yaml:"log" json:"log"`

	source   string
	warnings []string
}

// ServerConfig locates the model server.
type ServerConfig struct {
	// URL is the server base URL.
	URL        string `toml:"url" yaml:"url" json:"url"`
	ChatPath   string `toml:"chat_path" yaml:"chat_path" json:"chat_path"`
	HealthPath string `toml:"health_path" yaml:"health_path" json:"health_path"`
	// Model is sent with each request when set.
	Model string `toml:"model" yaml:"model" json:"model"`
	// ConnectTimeout in seconds.
	ConnectTimeout int `toml:"connect_timeout" yaml:"connect_timeout" json:"connect_timeout"`
	MaxRetries     int `toml:"max_retries" yaml:"max_retries" json:"max_retries"`
	RetryDelayMs   int `toml:"retry_delay_ms" yaml:"retry_delay_ms" json:"retry_delay_ms"`
}

// TransportConfig describes the wire encoding of replies.
type TransportConfig struct {
	// NewlineToken is the sentinel that stands for "\n" in fragments.
	NewlineToken string `toml:"newline_token" yaml:"newline_token" json:"newline_token"`
}

// HistoryConfig controls the turn log.
type HistoryConfig struct {
	Path    string `toml:"path" yaml:"path" json:"path"`
	Enabled bool   `toml:"enabled" yaml:"enabled" json:"enabled"`
}

// UIConfig controls terminal output.
type UIConfig struct {
	// Theme is "dark", "light" or "auto".
	Theme string `toml:"theme" yaml:"theme" json:"theme"`
	// Highlight enables syntax highlighting of code blocks in the final pass.
	Highlight bool `toml:"highlight" yaml:"highlight" json:"highlight"`
	// Markdown renders plain text through glamour in the final pass.
	Markdown bool `toml:"markdown" yaml:"markdown" json:"markdown"`
	// Spinner names the waiting indicator frame set.
	Spinner string `toml:"spinner" yaml:"spinner" json:"spinner"`
	// Width overrides terminal width detection when > 0.
	Width int `toml:"width" yaml:"width" json:"width"`
}

// LogConfig controls the diagnostic log file.
type LogConfig struct {
	Path  string `toml:"path" yaml:"path" json:"path"`
	Level string `toml:"level" yaml:"level" json:"level"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:            "http://127.0.0.1:8080",
			ChatPath:       "/chat",
			HealthPath:     "/health",
			ConnectTimeout: 5,
			MaxRetries:     2,
			RetryDelayMs:   500,
		},
		Transport: TransportConfig{
			NewlineToken: "<|newline|>",
		},
		History: HistoryConfig{
			Path:    "~/.rigchat/history.log",
			Enabled: true,
		},
		UI: UIConfig{
			Theme:     "auto",
			Highlight: true,
			Spinner:   "line",
		},
		Log: LogConfig{
			Path:  "~/.rigchat/rigchat.log",
			Level: "info",
		},
	}
}

// fillDefaults restores defaults for string fields a file set to empty.
func fillDefaults(cfg *Config) {
	d := Default()

	if cfg.Server.URL == "" {
		cfg.Server.URL = d.Server.URL
	}
	if cfg.Server.ChatPath == "" {
		cfg.Server.ChatPath = d.Server.ChatPath
	}
	if cfg.Server.HealthPath == "" {
		cfg.Server.HealthPath = d.Server.HealthPath
	}
	if cfg.Server.ConnectTimeout == 0 {
		cfg.Server.ConnectTimeout = d.Server.ConnectTimeout
	}
	if cfg.Transport.NewlineToken == "" {
		cfg.Transport.NewlineToken = d.Transport.NewlineToken
	}
	if cfg.History.Path == "" {
		cfg.History.Path = d.History.Path
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = d.UI.Theme
	}
	if cfg.UI.Spinner == "" {
		cfg.UI.Spinner = d.UI.Spinner
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// Source returns the file the config was loaded from, or "" for defaults.
func (c *Config) Source() string {
	return c.source
}

// Warnings returns non-fatal problems found while loading.
func (c *Config) Warnings() []string {
	return c.warnings
}

// HistoryPath returns the history path with "~" expanded.
func (c *Config) HistoryPath() string {
	return util.ExpandHome(c.History.Path)
}

// LogPath returns the log path with "~" expanded. Empty disables logging.
func (c *Config) LogPath() string {
	return util.ExpandHome(c.Log.Path)
}

// ConnectTimeout returns Server.ConnectTimeout as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Server.ConnectTimeout) * time.Second
}

// RetryDelay returns Server.RetryDelayMs as a duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Server.RetryDelayMs) * time.Millisecond
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// candidateNames are tried in order when no explicit path is given.
var candidateNames = []string{"config.toml", "config.yaml", "config.yml", "config.json"}

// ConfigDir returns the rigchat configuration directory.
func ConfigDir() string {
	return util.DataDir()
}

// DefaultPath returns the TOML config path written by Save and
// `config init`.
func DefaultPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// FindConfig returns the first existing config file in ConfigDir, or ""
// when there is none.
func FindConfig() string {
	dir := ConfigDir()
	for _, name := range candidateNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// ensureSecurePermissions tightens a config file to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads path, or the first file FindConfig reports when path is
// empty, over the defaults. Environment overrides are applied last and the
// result is validated. A missing explicit path is an error; no file at all
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = FindConfig()
	}
	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile decodes path into cfg. Fields absent from the file keep their
// current values; unknown keys are an error.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := ensureSecurePermissions(path); err != nil {
			cfg.warnings = append(cfg.warnings, fmt.Sprintf("could not secure %s: %v", path, err))
		}
	}

	switch formatOf(path) {
	case "json":
		err = decodeJSON(cfg, data)
	case "yaml":
		err = decodeYAML(cfg, data)
	default:
		err = decodeTOML(cfg, data)
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	cfg.source = path
	return nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "toml"
	}
}

func decodeTOML(cfg *Config, data []byte) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

func decodeYAML(cfg *Config, data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeJSON(cfg *Config, data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

const fileHeader = "# rigchat configuration file\n# Generated by rigchat - edit with care\n\n"

// Save writes cfg as TOML to path (DefaultPath when empty) with 0600
// permissions.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath()
	}
	data, err := cfg.Marshal(formatOf(path))
	if err != nil {
		return err
	}
	// RELIABILITY: atomic write; SECURITY: owner read/write only.
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Marshal encodes cfg as "toml", "yaml" or "json".
func (c *Config) Marshal(format string) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case "json":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(c); err != nil {
			return nil, fmt.Errorf("failed to encode config: %w", err)
		}
	case "yaml":
		buf.WriteString(fileHeader)
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return nil, fmt.Errorf("failed to encode config: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode config: %w", err)
		}
	case "toml", "":
		buf.WriteString(fileHeader)
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return nil, fmt.Errorf("failed to encode config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}
	return buf.Bytes(), nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every invalid field.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

var (
	validThemes   = []string{"auto", "dark", "light"}
	validSpinners = []string{"line", "dot", "minidot", "pulse"}
	validLevels   = []string{"debug", "info", "warn", "warning", "error"}
)

// Validate checks every field and returns ValidateErrors when any is
// invalid.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Server
	if u, err := url.Parse(c.Server.URL); err != nil {
		add("server.url", "invalid URL: %v", err)
	} else if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("server.url", "must be an http or https URL with a host, got %q", c.Server.URL)
	}
	if !strings.HasPrefix(c.Server.ChatPath, "/") {
		add("server.chat_path", "must start with '/'")
	}
	if !strings.HasPrefix(c.Server.HealthPath, "/") {
		add("server.health_path", "must start with '/'")
	}
	if c.Server.ConnectTimeout < 1 || c.Server.ConnectTimeout > 300 {
		add("server.connect_timeout", "must be between 1 and 300 seconds, got %d", c.Server.ConnectTimeout)
	}
	if c.Server.MaxRetries < 0 || c.Server.MaxRetries > 10 {
		add("server.max_retries", "must be between 0 and 10, got %d", c.Server.MaxRetries)
	}
	if c.Server.RetryDelayMs < 0 || c.Server.RetryDelayMs > 60000 {
		add("server.retry_delay_ms", "must be between 0 and 60000, got %d", c.Server.RetryDelayMs)
	}

	// Transport
	tok := c.Transport.NewlineToken
	switch {
	case tok == "":
		add("transport.newline_token", "cannot be empty")
	case strings.ContainsAny(tok, "\r\n"):
		add("transport.newline_token", "cannot contain line breaks")
	case strings.Contains(tok, "`") || tok == "<|thinking|>" || tok == "</|thinking|>":
		add("transport.newline_token", "cannot overlap the thinking or fence markers")
	}

	// UI
	if !oneOf(c.UI.Theme, validThemes) {
		add("ui.theme", "invalid theme %q, must be one of: %s", c.UI.Theme, strings.Join(validThemes, ", "))
	}
	if !oneOf(c.UI.Spinner, validSpinners) {
		add("ui.spinner", "invalid spinner %q, must be one of: %s", c.UI.Spinner, strings.Join(validSpinners, ", "))
	}
	if c.UI.Width < 0 || (c.UI.Width > 0 && c.UI.Width < 10) {
		add("ui.width", "must be 0 (detect) or at least 10, got %d", c.UI.Width)
	}

	// Log
	if !oneOf(c.Log.Level, validLevels) {
		add("log.level", "invalid level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func oneOf(v string, set []string) bool {
	v = strings.ToLower(v)
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies RIGCHAT_* environment variables:
//   - RIGCHAT_SERVER_URL: server.url
//   - RIGCHAT_MODEL: server.model
//   - RIGCHAT_HISTORY: history.path, or "off"/"0"/"false" to disable
//   - RIGCHAT_NEWLINE_TOKEN: transport.newline_token
//   - RIGCHAT_THEME: ui.theme
//   - RIGCHAT_NO_HIGHLIGHT: "1"/"true" disables ui.highlight
//   - RIGCHAT_LOG_LEVEL: log.level
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RIGCHAT_SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("RIGCHAT_MODEL"); v != "" {
		c.Server.Model = v
	}
	if v := os.Getenv("RIGCHAT_HISTORY"); v != "" {
		switch strings.ToLower(v) {
		case "off", "0", "false", "no":
			c.History.Enabled = false
		default:
			c.History.Path = v
			c.History.Enabled = true
		}
	}
	if v := os.Getenv("RIGCHAT_NEWLINE_TOKEN"); v != "" {
		c.Transport.NewlineToken = v
	}
	if v := os.Getenv("RIGCHAT_THEME"); v != "" {
		c.UI.Theme = v
	}
	if v := os.Getenv("RIGCHAT_NO_HIGHLIGHT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			c.UI.Highlight = false
		}
	}
	if v := os.Getenv("RIGCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get returns the value of a dotted key such as "server.url".
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a dotted key from its string form.
func (c *Config) Set(key, value string) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return reflect.Value{}, fmt.Errorf("key must look like section.name, got %q", key)
	}
	section, ok := fieldByTag(reflect.ValueOf(c).Elem(), parts[0])
	if !ok || section.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("unknown section: %s", parts[0])
	}
	field, ok := fieldByTag(section, parts[1])
	if !ok {
		return reflect.Value{}, fmt.Errorf("unknown key: %s", key)
	}
	return field, nil
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tomlName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tomlName(f reflect.StructField) string {
	tag, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
	return tag
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value: %v", err)
		}
		field.SetInt(int64(n))
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %v", err)
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("cannot set field of kind %s", field.Kind())
	}
	return nil
}

// AllKeys returns every dotted key, sorted.
func AllKeys() []string {
	var keys []string
	ct := reflect.TypeOf(Config{})
	for i := 0; i < ct.NumField(); i++ {
		sf := ct.Field(i)
		section := tomlName(sf)
		if section == "" || sf.Type.Kind() != reflect.Struct {
			continue
		}
		for j := 0; j < sf.Type.NumField(); j++ {
			keys = append(keys, section+"."+tomlName(sf.Type.Field(j)))
		}
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	clone := *c
	clone.warnings = append([]string(nil), c.warnings...)
	return &clone
}
