package feed

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultEmoji = "•"

var ErrNoCategories = errors.New("no usable categories configured")

type ConfigLoader struct {
	configPath string
}

func NewConfigLoader(configPath string) *ConfigLoader {
	return &ConfigLoader{configPath: configPath}
}

// Run reads, normalizes and validates the bulletin configuration. Categories
// without feeds or with a non-positive limit are dropped; ending up with no
// categories at all is an error.
func (cl *ConfigLoader) Run() (*Config, error) {
	config, err := cl.parseConfig()
	if err != nil {
		return nil, err
	}

	if err := cl.resolveFeedsFiles(config); err != nil {
		return nil, err
	}

	cl.normalize(config)

	if err := cl.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cl.configPath, err)
	}

	slog.Debug("Configuration loaded",
		"path", cl.configPath,
		"categories", len(config.Categories),
		"routing_rules", len(config.Routing),
		"emoji_rules", len(config.Emoji))

	return config, nil
}

func (cl *ConfigLoader) parseConfig() (*Config, error) {
	data, err := os.ReadFile(cl.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if config.DefaultEmoji == "" {
		config.DefaultEmoji = DefaultEmoji
	}

	return &config, nil
}

// resolveFeedsFiles appends the locations listed in each category's
// feeds_file, resolved relative to the configuration file.
func (cl *ConfigLoader) resolveFeedsFiles(config *Config) error {
	baseDir := filepath.Dir(cl.configPath)

	for i := range config.Categories {
		category := &config.Categories[i]
		if category.FeedsFile == "" {
			continue
		}

		path := category.FeedsFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}

		feeds, err := ReadFeedsFile(path)
		if err != nil {
			return fmt.Errorf("category %q: %w", category.Name, err)
		}
		category.Feeds = append(category.Feeds, feeds...)
	}

	return nil
}

func (cl *ConfigLoader) normalize(config *Config) {
	config.Title = strings.TrimSpace(config.Title)
	config.Subtitle = strings.TrimSpace(config.Subtitle)

	categories := make([]Category, 0, len(config.Categories))
	for _, category := range config.Categories {
		category.Name = strings.TrimSpace(category.Name)
		category.Feeds = compact(category.Feeds, strings.TrimSpace)

		if category.Limit <= 0 || len(category.Feeds) == 0 {
			slog.Warn("Category skipped", "category", category.Name, "limit", category.Limit, "feeds", len(category.Feeds))
			continue
		}
		categories = append(categories, category)
	}
	config.Categories = categories

	routing := make([]RoutingRule, 0, len(config.Routing))
	for i, rule := range config.Routing {
		rule.Target = strings.TrimSpace(rule.Target)
		rule.Keywords = compact(rule.Keywords, normalizeKeyword)

		if rule.Target == "" || len(rule.Keywords) == 0 {
			slog.Warn("Routing rule skipped", "index", i, "target", rule.Target)
			continue
		}
		routing = append(routing, rule)
	}
	config.Routing = routing

	emoji := make([]EmojiRule, 0, len(config.Emoji))
	for i, rule := range config.Emoji {
		rule.Emoji = strings.TrimSpace(rule.Emoji)
		rule.Keywords = compact(rule.Keywords, normalizeKeyword)

		if rule.Emoji == "" || len(rule.Keywords) == 0 {
			slog.Warn("Emoji rule skipped", "index", i, "emoji", rule.Emoji)
			continue
		}
		emoji = append(emoji, rule)
	}
	config.Emoji = emoji
}

func (cl *ConfigLoader) validateConfig(config *Config) error {
	if len(config.Categories) == 0 {
		return ErrNoCategories
	}

	seen := make(map[string]bool, len(config.Categories))
	for i, category := range config.Categories {
		if category.Name == "" {
			return fmt.Errorf("category at index %d has no name", i)
		}
		if seen[category.Name] {
			return fmt.Errorf("duplicate category name: %s", category.Name)
		}
		seen[category.Name] = true
	}

	for i, rule := range config.Routing {
		if !seen[rule.Target] {
			slog.Warn("Routing rule targets unknown category, it will never apply", "index", i, "target", rule.Target)
		}
	}

	return nil
}

// ReadFeedsFile reads a plain feed list: one location per line, blank lines
// and lines starting with '#' ignored.
func ReadFeedsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feeds file: %w", err)
	}

	var feeds []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		feeds = append(feeds, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan feeds file: %w", err)
	}

	return feeds, nil
}

func normalizeKeyword(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}

// compact applies fn to every value and drops the empty results.
func compact(values []string, fn func(string) string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value = fn(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}
