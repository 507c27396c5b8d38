package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/nicotine/internal/logger"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Linux input event codes used by the default bindings.
const (
	BtnExtra     uint16 = 275 // mouse button 8
	BtnSide      uint16 = 276 // mouse button 9
	KeyTab       uint16 = 15
	KeyLeftShift uint16 = 42
)

// Backend names accepted by the backend key.
var Backends = []string{"auto", "x11", "kwin", "sway", "hyprland"}

// Config represents the application configuration
type Config struct {
	LogLevel string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	Backend  string `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Well-known locations. Empty means the runtime default.
	SocketPath string `json:"socket_path" yaml:"socket_path" mapstructure:"socket_path"`
	IndexPath  string `json:"index_path" yaml:"index_path" mapstructure:"index_path"`

	RefreshInterval       time.Duration `json:"refresh_interval" yaml:"refresh_interval" mapstructure:"refresh_interval"`
	EmptyTicksBeforeClear int           `json:"empty_ticks_before_clear" yaml:"empty_ticks_before_clear" mapstructure:"empty_ticks_before_clear"`
	FollowFocus           bool          `json:"follow_focus" yaml:"follow_focus" mapstructure:"follow_focus"`
	IPCReadTimeout        time.Duration `json:"ipc_read_timeout" yaml:"ipc_read_timeout" mapstructure:"ipc_read_timeout"`
	// MinimizeInactive minimizes the window cycled away from
	MinimizeInactive bool `json:"minimize_inactive" yaml:"minimize_inactive" mapstructure:"minimize_inactive"`

	Window   WindowConfig   `json:"window" yaml:"window" mapstructure:"window"`
	Stack    StackConfig    `json:"stack" yaml:"stack" mapstructure:"stack"`
	Status   StatusConfig   `json:"status" yaml:"status" mapstructure:"status"`
	Mouse    MouseConfig    `json:"mouse" yaml:"mouse" mapstructure:"mouse"`
	Keyboard KeyboardConfig `json:"keyboard" yaml:"keyboard" mapstructure:"keyboard"`
}

// WindowConfig selects which windows take part in cycling
type WindowConfig struct {
	TitlePrefix     string   `json:"title_prefix" yaml:"title_prefix" mapstructure:"title_prefix"`
	ExcludePatterns []string `json:"exclude_patterns" yaml:"exclude_patterns" mapstructure:"exclude_patterns"`
	OrderFile       string   `json:"order_file" yaml:"order_file" mapstructure:"order_file"`
}

// StackConfig describes where stacked windows are placed
type StackConfig struct {
	DisplayWidth  int  `json:"display_width" yaml:"display_width" mapstructure:"display_width"`
	DisplayHeight int  `json:"display_height" yaml:"display_height" mapstructure:"display_height"`
	PanelHeight   int  `json:"panel_height" yaml:"panel_height" mapstructure:"panel_height"`
	WindowWidth   int  `json:"window_width" yaml:"window_width" mapstructure:"window_width"`
	Fullscreen    bool `json:"fullscreen" yaml:"fullscreen" mapstructure:"fullscreen"`
	OnStart       bool `json:"on_start" yaml:"on_start" mapstructure:"on_start"`

	// PrimaryCharacter is moved to PrimaryMonitor when stacking; every
	// other window stays on its own monitor.
	PrimaryCharacter string `json:"primary_character" yaml:"primary_character" mapstructure:"primary_character"`
	PrimaryMonitor   string `json:"primary_monitor" yaml:"primary_monitor" mapstructure:"primary_monitor"`
}

// Rect returns the target rectangle for a stacked window on the configured
// display.
func (s StackConfig) Rect() (x, y, width, height int) {
	return s.RectOn(0, 0, s.DisplayWidth, s.DisplayHeight)
}

// RectOn returns the target rectangle on a monitor at (x0, y0) of the given
// size: centered, top-aligned, leaving room for the panel.
func (s StackConfig) RectOn(x0, y0, displayWidth, displayHeight int) (x, y, width, height int) {
	height = displayHeight - s.PanelHeight
	if height < 1 {
		height = displayHeight
	}
	if s.Fullscreen {
		return x0, y0, displayWidth, height
	}
	width = s.WindowWidth
	if width <= 0 || width > displayWidth {
		width = displayWidth
	}
	return x0 + (displayWidth-width)/2, y0, width, height
}

// StatusConfig controls the read-only status socket
type StatusConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	SocketPath string `json:"socket_path" yaml:"socket_path" mapstructure:"socket_path"`
}

// MouseConfig binds mouse buttons to cycle commands
type MouseConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	DevicePath     string `json:"device_path" yaml:"device_path" mapstructure:"device_path"`
	DeviceName     string `json:"device_name" yaml:"device_name" mapstructure:"device_name"`
	ForwardButton  uint16 `json:"forward_button" yaml:"forward_button" mapstructure:"forward_button"`
	BackwardButton uint16 `json:"backward_button" yaml:"backward_button" mapstructure:"backward_button"`
}

// KeyboardConfig binds keys to cycle commands. A binding with a modifier
// only fires while the modifier is held.
type KeyboardConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	DevicePath       string   `json:"device_path" yaml:"device_path" mapstructure:"device_path"`
	DeviceName       string   `json:"device_name" yaml:"device_name" mapstructure:"device_name"`
	ForwardKey       uint16   `json:"forward_key" yaml:"forward_key" mapstructure:"forward_key"`
	ForwardModifier  uint16   `json:"forward_modifier" yaml:"forward_modifier" mapstructure:"forward_modifier"`
	BackwardKey      uint16   `json:"backward_key" yaml:"backward_key" mapstructure:"backward_key"`
	BackwardModifier uint16   `json:"backward_modifier" yaml:"backward_modifier" mapstructure:"backward_modifier"`
	TargetKeys       []uint16 `json:"target_keys" yaml:"target_keys" mapstructure:"target_keys"`
	TargetModifier   uint16   `json:"target_modifier" yaml:"target_modifier" mapstructure:"target_modifier"`
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		LogLevel:              "info",
		Backend:               "auto",
		RefreshInterval:       500 * time.Millisecond,
		EmptyTicksBeforeClear: 2,
		FollowFocus:           true,
		IPCReadTimeout:        time.Second,
		Window: WindowConfig{
			TitlePrefix:     "EVE - ",
			ExcludePatterns: []string{"Launcher"},
		},
		Stack: StackConfig{
			DisplayWidth:  1920,
			DisplayHeight: 1080,
			WindowWidth:   1036,
		},
		Status: StatusConfig{
			Enabled: true,
		},
		Mouse: MouseConfig{
			Enabled:        true,
			ForwardButton:  BtnSide,
			BackwardButton: BtnExtra,
		},
		Keyboard: KeyboardConfig{
			Enabled:          false,
			ForwardKey:       KeyTab,
			BackwardKey:      KeyTab,
			BackwardModifier: KeyLeftShift,
			TargetKeys:       []uint16{},
		},
	}
}

// DisplayDetector reports the current screen size; ok is false when unknown
type DisplayDetector func() (width, height int, ok bool)

type options struct {
	detect DisplayDetector
}

// Option customizes config file generation
type Option func(*options)

// WithDisplayDetector sizes the stack section of a generated config file from
// the running display instead of the 1920x1080 default.
func WithDisplayDetector(detect DisplayDetector) Option {
	return func(o *options) { o.detect = detect }
}

// generated returns the defaults written to a new config file
func generated(opts []Option) *Config {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	cfg := Defaults()
	if o.detect != nil {
		if w, h, ok := o.detect(); ok {
			cfg.Stack.DisplayWidth = w
			cfg.Stack.DisplayHeight = h
		}
	}
	return cfg
}

// Manager handles configuration
type Manager struct {
	configPath string
	v          *viper.Viper
	config     *Config
	mu         sync.RWMutex
}

// NewManager creates a new configuration manager. A missing config file is
// generated from the defaults.
func NewManager(configFile string, opts ...Option) (*Manager, error) {
	path := configFile
	if path == "" {
		path = DefaultConfigPath()
	}

	m := &Manager{
		configPath: path,
		v:          newViper(path),
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		logger.WithComponent("config").Info().
			Str("path", path).
			Msg("Config file not found, creating new config")
		if err := writeYAML(path, generated(opts)); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	if err := m.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := m.reload(); err != nil {
		return nil, err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Str("backend", m.config.Backend).
		Msg("Config loaded")

	return m, nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("NICOTINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Defaults()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("backend", d.Backend)
	v.SetDefault("socket_path", d.SocketPath)
	v.SetDefault("index_path", d.IndexPath)
	v.SetDefault("refresh_interval", d.RefreshInterval)
	v.SetDefault("empty_ticks_before_clear", d.EmptyTicksBeforeClear)
	v.SetDefault("follow_focus", d.FollowFocus)
	v.SetDefault("ipc_read_timeout", d.IPCReadTimeout)
	v.SetDefault("minimize_inactive", d.MinimizeInactive)

	v.SetDefault("window.title_prefix", d.Window.TitlePrefix)
	v.SetDefault("window.exclude_patterns", d.Window.ExcludePatterns)
	v.SetDefault("window.order_file", d.Window.OrderFile)

	v.SetDefault("stack.display_width", d.Stack.DisplayWidth)
	v.SetDefault("stack.display_height", d.Stack.DisplayHeight)
	v.SetDefault("stack.panel_height", d.Stack.PanelHeight)
	v.SetDefault("stack.window_width", d.Stack.WindowWidth)
	v.SetDefault("stack.fullscreen", d.Stack.Fullscreen)
	v.SetDefault("stack.on_start", d.Stack.OnStart)
	v.SetDefault("stack.primary_character", d.Stack.PrimaryCharacter)
	v.SetDefault("stack.primary_monitor", d.Stack.PrimaryMonitor)

	v.SetDefault("status.enabled", d.Status.Enabled)
	v.SetDefault("status.socket_path", d.Status.SocketPath)

	v.SetDefault("mouse.enabled", d.Mouse.Enabled)
	v.SetDefault("mouse.device_path", d.Mouse.DevicePath)
	v.SetDefault("mouse.device_name", d.Mouse.DeviceName)
	v.SetDefault("mouse.forward_button", d.Mouse.ForwardButton)
	v.SetDefault("mouse.backward_button", d.Mouse.BackwardButton)

	v.SetDefault("keyboard.enabled", d.Keyboard.Enabled)
	v.SetDefault("keyboard.device_path", d.Keyboard.DevicePath)
	v.SetDefault("keyboard.device_name", d.Keyboard.DeviceName)
	v.SetDefault("keyboard.forward_key", d.Keyboard.ForwardKey)
	v.SetDefault("keyboard.forward_modifier", d.Keyboard.ForwardModifier)
	v.SetDefault("keyboard.backward_key", d.Keyboard.BackwardKey)
	v.SetDefault("keyboard.backward_modifier", d.Keyboard.BackwardModifier)
	v.SetDefault("keyboard.target_keys", d.Keyboard.TargetKeys)
	v.SetDefault("keyboard.target_modifier", d.Keyboard.TargetModifier)
	return v
}

// reload decodes the viper state into a validated Config
func (m *Manager) reload() error {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Validate checks value ranges and normalizes values that have a floor.
func (c *Config) Validate() error {
	valid := false
	for _, b := range Backends {
		if c.Backend == b {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unknown backend %q (use one of %s)", c.Backend, strings.Join(Backends, ", "))
	}
	if c.RefreshInterval < 10*time.Millisecond {
		return fmt.Errorf("refresh_interval %s is below 10ms", c.RefreshInterval)
	}
	if c.IPCReadTimeout <= 0 {
		return fmt.Errorf("ipc_read_timeout must be positive")
	}
	// One empty enumeration is never enough to clear the cycle list.
	if c.EmptyTicksBeforeClear < 2 {
		c.EmptyTicksBeforeClear = 2
	}
	for _, p := range c.Window.ExcludePatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
	}
	if c.Stack.DisplayWidth <= 0 || c.Stack.DisplayHeight <= 0 {
		return fmt.Errorf("stack display size must be positive")
	}
	return nil
}

// Get returns a copy of the current configuration with every well-known
// path resolved.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults().Resolved()
	}
	return m.config.Resolved()
}

// Resolved returns a copy with empty paths replaced by their runtime defaults.
func (c *Config) Resolved() *Config {
	cfg := *c
	cfg.Window.ExcludePatterns = append([]string(nil), c.Window.ExcludePatterns...)
	cfg.Keyboard.TargetKeys = append([]uint16(nil), c.Keyboard.TargetKeys...)

	if cfg.SocketPath == "" {
		cfg.SocketPath = DefaultSocketPath()
	}
	if cfg.IndexPath == "" {
		cfg.IndexPath = DefaultIndexPath()
	}
	if cfg.Status.SocketPath == "" {
		cfg.Status.SocketPath = DefaultStatusSocketPath()
	}
	if cfg.Window.OrderFile == "" {
		cfg.Window.OrderFile = DefaultOrderFile()
	}
	return &cfg
}

// BindFlag lets a command-line flag override a config key.
func (m *Manager) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil || !flag.Changed {
		return nil
	}
	if err := m.v.BindPFlag(key, flag); err != nil {
		return fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
	}
	return m.reload()
}

// IsSet reports whether key has a value from any source.
func (m *Manager) IsSet(key string) bool {
	return m.v.IsSet(key)
}

// Value returns the raw value of a key.
func (m *Manager) Value(key string) interface{} {
	return m.v.Get(key)
}

// Set changes one key, validates the result and persists it. Only the
// keys already in the config file plus key are written back; environment
// and flag overrides stay out of the file.
func (m *Manager) Set(key string, value interface{}) error {
	old := m.v.Get(key)
	m.v.Set(key, value)
	if err := m.reload(); err != nil {
		m.v.Set(key, old)
		return err
	}
	return m.saveKey(key, value)
}

// saveKey rewrites the config file with key set to value
func (m *Manager) saveKey(key string, value interface{}) error {
	log := logger.WithComponent("config")

	file := viper.New()
	file.SetConfigFile(m.configPath)
	file.SetConfigType("yaml")
	if err := file.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read config %s: %w", m.configPath, err)
	}
	file.Set(key, value)

	data, err := yaml.Marshal(file.AllSettings())
	if err == nil {
		err = writeFile(m.configPath, data)
	}
	if err != nil {
		log.Error().Err(err).Str("path", m.configPath).Msg("Failed to write config")
		return err
	}

	log.Info().Str("path", m.configPath).Str("key", key).Msg("Config saved successfully")
	return nil
}

// WriteDefaults writes the default configuration to path
func WriteDefaults(path string, opts ...Option) error {
	return writeYAML(path, generated(opts))
}

func writeYAML(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// AddExcludePattern adds a title exclusion regex
func (m *Manager) AddExcludePattern(pattern string) error {
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("invalid regex pattern: %w", err)
	}

	patterns := m.Get().Window.ExcludePatterns
	for _, p := range patterns {
		if p == pattern {
			return nil
		}
	}
	return m.Set("window.exclude_patterns", append(patterns, pattern))
}

// RemoveExcludePattern removes a title exclusion regex
func (m *Manager) RemoveExcludePattern(pattern string) error {
	patterns := m.Get().Window.ExcludePatterns
	kept := make([]string, 0, len(patterns))
	found := false
	for _, p := range patterns {
		if p == pattern {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return fmt.Errorf("pattern not found: %s", pattern)
	}
	return m.Set("window.exclude_patterns", kept)
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
