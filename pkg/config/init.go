package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const configHeader = `Blossom Server Configuration File
Every value can be overridden with an environment variable: upper-case the
key path, join with underscores and prefix BLOSSOM_, e.g.
BLOSSOM_STORAGE_BACKEND=s3 or BLOSSOM_LOGGING_LEVEL=DEBUG.`

// sectionComments are attached above the matching keys in generated files.
var sectionComments = map[string]string{
	"logging":               "Logging: level (DEBUG, INFO, WARN, ERROR), format (text, json), output (stdout, stderr or a file path)",
	"server":                "Process-wide settings",
	"metrics":               "Prometheus metrics endpoint",
	"index":                 "SQLite metadata index",
	"storage":               "Blob storage backend and retention",
	"backend":               "Backend to use: local or s3",
	"local":                 "Local filesystem backend options",
	"s3":                    "S3 backend options: bucket, endpoint, port, region, access_key, secret_key,\npublic_url, use_ssl, path_style, accelerate, max_retries",
	"rules":                 "Retention rules, evaluated in order. The first rule matching a blob decides it.\ntype is a MIME glob; expiration is e.g. \"30 days\", \"1 week\", \"2 months\", \"12h\" or seconds;\npubkeys optionally restricts the rule to blobs with one of those owners.",
	"remove_when_no_owners": "Remove blobs that have no owners left",
	"remove_untracked":      "Remove backend objects the index has no record of (after untracked_grace)",
	"prune_interval":        "How often the retention sweep runs while serving",
	"prune_rate_limit":      "Maximum removals per second during a sweep (0 = unlimited)",
}

// InitConfig writes a default configuration file to the default location
// and returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	// The file may hold S3 credentials.
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg as YAML with explanatory comments.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var root yaml.Node
	if err := root.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	annotate(&root)

	doc := yaml.Node{
		Kind:        yaml.DocumentNode,
		HeadComment: commentLines(configHeader),
		Content:     []*yaml.Node{&root},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// annotate attaches section comments to matching mapping keys.
func annotate(n *yaml.Node) {
	if n.Kind == yaml.MappingNode {
		for i := 0; i < len(n.Content); i += 2 {
			if comment, ok := sectionComments[n.Content[i].Value]; ok {
				n.Content[i].HeadComment = commentLines(comment)
			}
		}
	}
	for _, child := range n.Content {
		annotate(child)
	}
}

// commentLines prefixes every line of s with "# ".
func commentLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = "# " + line
	}
	return strings.Join(lines, "\n")
}
