package config

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// DefaultTOC is used when no level selectors are configured.
var DefaultTOC = []string{"1=h1", "2=h2", "3=h3"}

type Config struct {
	// Layout
	OutputRoot string
	SourceRoot string
	Name       string

	// Table of contents: level -> CSS selector
	TOCLevels map[int]string

	// Document rewriting
	Scripted bool
	MathJax  string
	ExtraCSS string

	// Manifest
	Lenient bool

	// Package metadata
	Title      string
	Language   string
	Identifier string
	Creator    string

	// Loading
	Workers           int
	StylesheetCacheSz int

	// Output
	Archive bool

	// Serve mode
	Port         string
	APIKey       string
	MaxQueueSize int
	BuildTTL     time.Duration
}

// Defaults returns a Config with every optional field set.
func Defaults() Config {
	levels, _ := ParseTOCLevels(DefaultTOC)
	return Config{
		OutputRoot:        ".",
		SourceRoot:        ".",
		TOCLevels:         levels,
		Language:          "en",
		Workers:           4,
		StylesheetCacheSz: 256,
		Port:              "8090",
		MaxQueueSize:      8,
		BuildTTL:          1 * time.Hour,
	}
}

// Load reads every key from v, falling back to Defaults for unset or
// invalid numeric values.
func Load(v *viper.Viper) (Config, error) {
	cfg := Defaults()

	cfg.OutputRoot = stringOr(v, "output", cfg.OutputRoot)
	cfg.SourceRoot = stringOr(v, "source-root", cfg.SourceRoot)
	cfg.Name = v.GetString("name")

	if raw := stringList(v.Get("toc")); len(raw) > 0 {
		levels, err := ParseTOCLevels(raw)
		if err != nil {
			return cfg, err
		}
		cfg.TOCLevels = levels
	}

	cfg.Scripted = v.GetBool("scripted")
	cfg.MathJax = v.GetString("mathjax")
	cfg.ExtraCSS = v.GetString("css")
	cfg.Lenient = v.GetBool("lenient")

	cfg.Title = stringOr(v, "title", cfg.Name)
	cfg.Language = stringOr(v, "language", cfg.Language)
	cfg.Identifier = v.GetString("identifier")
	cfg.Creator = v.GetString("creator")

	cfg.Workers = intOr(v, "workers", cfg.Workers)
	cfg.StylesheetCacheSz = intOr(v, "css-cache-size", cfg.StylesheetCacheSz)
	cfg.Archive = v.GetBool("zip")

	cfg.Port = stringOr(v, "port", cfg.Port)
	cfg.APIKey = v.GetString("api-key")
	cfg.MaxQueueSize = intOr(v, "queue-size", cfg.MaxQueueSize)
	if d := v.GetDuration("build-ttl"); d > 0 {
		cfg.BuildTTL = d
	}

	// MathJax needs script execution in the reading system.
	if cfg.MathJax != "" {
		cfg.Scripted = true
	}
	if cfg.Identifier == "" && cfg.Name != "" {
		cfg.Identifier = DeriveIdentifier(cfg.Name)
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.ContainsAny(c.Name, `/\`) {
		return fmt.Errorf("name %q must not contain path separators", c.Name)
	}
	if len(c.TOCLevels) == 0 {
		return fmt.Errorf("at least one toc level is required")
	}
	for level, sel := range c.TOCLevels {
		if level < 1 {
			return fmt.Errorf("toc level %d: must be >= 1", level)
		}
		if _, err := cascadia.Compile(sel); err != nil {
			return fmt.Errorf("toc level %d selector %q: %w", level, sel, err)
		}
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Language == "" {
		return fmt.Errorf("language is required")
	}
	return nil
}

// Levels returns the configured levels in ascending order.
func (c Config) Levels() []int {
	out := make([]int, 0, len(c.TOCLevels))
	for l := range c.TOCLevels {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

var levelPrefix = regexp.MustCompile(`^\s*\d+\s*=`)

// ParseTOCLevels parses "level=selector" pairs. An entry may hold several
// comma separated pairs ("1=h1,2=h2"); commas inside a selector are kept
// when the following text does not start a new pair. Later pairs for the
// same level win.
func ParseTOCLevels(entries []string) (map[int]string, error) {
	var pairs []string
	for _, entry := range entries {
		for _, part := range strings.Split(entry, ",") {
			if len(pairs) > 0 && !levelPrefix.MatchString(part) {
				pairs[len(pairs)-1] += "," + part
				continue
			}
			pairs = append(pairs, part)
		}
	}

	levels := make(map[int]string, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, sel, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("toc entry %q: expected level=selector", pair)
		}
		level, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("toc entry %q: invalid level: %w", pair, err)
		}
		if level < 1 {
			return nil, fmt.Errorf("toc entry %q: level must be >= 1", pair)
		}
		sel = strings.TrimSpace(sel)
		if sel == "" {
			return nil, fmt.Errorf("toc entry %q: empty selector", pair)
		}
		levels[level] = sel
	}
	return levels, nil
}

// DeriveIdentifier returns a stable urn:uuid identifier for a book name.
func DeriveIdentifier(name string) string {
	return "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte("epubmaker:"+name)).String()
}

func stringOr(v *viper.Viper, key, fallback string) string {
	if s := v.GetString(key); s != "" {
		return s
	}
	return fallback
}

func intOr(v *viper.Viper, key string, fallback int) int {
	if n := v.GetInt(key); n > 0 {
		return n
	}
	return fallback
}

// stringList accepts the shapes a list can take across flags, env and yaml.
func stringList(raw any) []string {
	switch t := raw.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			out = append(out, fmt.Sprint(x))
		}
		return out
	}
	return []string{fmt.Sprint(raw)}
}
