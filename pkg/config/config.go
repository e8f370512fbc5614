// Package config resolves the launch manifest: the pinned base environment,
// the trust and build invocations, and the ambient knobs (logging, status
// API, metrics, tracing, journal). Defaults pin every invocation so two
// launches of the same manifest provision identical environments.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hookline/stagezero/pkg/environ"
)

// Pinned defaults. The base image is a fixed literal, never derived at
// runtime: changing it changes the trust and compatibility baseline, so it
// only moves by editing this constant or the manifest.
const (
	DefaultBaseImage    = "rust:1.70-slim-bookworm"
	DefaultWorkDir      = "/app"
	DefaultServiceName  = "webhook"
	DefaultArtifactPath = "target/release/webhook"
)

// DefaultTrustPackages is the trust material installed before the build.
var DefaultTrustPackages = []string{"ca-certificates"}

// ServiceConfig names the opaque binary this launch produces.
type ServiceConfig struct {
	Name         string   `yaml:"name"`
	ArtifactPath string   `yaml:"artifact_path"`
	Args         []string `yaml:"args"`
	Env          []string `yaml:"env"`
}

// TrustConfig declares the package-manager invocation surface.
type TrustConfig struct {
	// RefreshCommand refreshes the package index.
	RefreshCommand []string `yaml:"refresh_command"`
	// InstallCommand installs packages; package names are appended.
	InstallCommand []string `yaml:"install_command"`
	Packages       []string `yaml:"packages"`
}

// BuildConfig declares the build tool invocation.
type BuildConfig struct {
	Command []string `yaml:"command"`
}

// StatusAPIConfig controls the launch-progress endpoint served while the
// pipeline runs. It is always shut down before handoff.
type StatusAPIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// MetricsConfig controls where stage metrics are flushed before handoff.
type MetricsConfig struct {
	// TextfilePath, when set, receives a node-exporter style .prom dump.
	TextfilePath string `yaml:"textfile_path"`
}

// TracingConfig controls per-stage OpenTelemetry spans.
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Environment  string `yaml:"environment"`
}

// JournalConfig controls the local launch journal.
type JournalConfig struct {
	// Path of the SQLite journal. Empty disables journaling.
	Path string `yaml:"path"`
}

// Config is the resolved launch manifest.
type Config struct {
	BaseImage string          `yaml:"base_image"`
	WorkDir   string          `yaml:"workdir"`
	Service   ServiceConfig   `yaml:"service"`
	Trust     TrustConfig     `yaml:"trust"`
	Build     BuildConfig     `yaml:"build"`
	StatusAPI StatusAPIConfig `yaml:"status_api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Journal   JournalConfig   `yaml:"journal"`
	LogLevel  string          `yaml:"log_level"`
	LogJSON   bool            `yaml:"log_json"`
}

// Default returns the fully pinned default configuration.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML manifest and fills unset fields with the pinned
// defaults. Unknown keys are rejected so a typo cannot silently drop a
// provisioning step.
func Load(path string) (Config, error) {
	var cfg Config

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BaseImage == "" {
		c.BaseImage = DefaultBaseImage
	}
	if c.WorkDir == "" {
		c.WorkDir = DefaultWorkDir
	}
	if c.Service.Name == "" {
		c.Service.Name = DefaultServiceName
	}
	if c.Service.ArtifactPath == "" {
		c.Service.ArtifactPath = DefaultArtifactPath
	}
	if len(c.Trust.RefreshCommand) == 0 {
		c.Trust.RefreshCommand = []string{"apt-get", "update"}
	}
	if len(c.Trust.InstallCommand) == 0 {
		c.Trust.InstallCommand = []string{"apt-get", "install", "-y", "--no-install-recommends"}
	}
	if len(c.Trust.Packages) == 0 {
		c.Trust.Packages = append([]string(nil), DefaultTrustPackages...)
	}
	if len(c.Build.Command) == 0 {
		c.Build.Command = DefaultBuildCommand(c.Service.Name)
	}
	if c.StatusAPI.Listen == "" {
		c.StatusAPI.Listen = ":9921"
	}
	if c.Tracing.OTLPEndpoint == "" {
		c.Tracing.OTLPEndpoint = "localhost:4318"
	}
	if c.Tracing.Environment == "" {
		c.Tracing.Environment = "production"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// DefaultBuildCommand returns the fixed build invocation for a binary name.
func DefaultBuildCommand(name string) []string {
	return []string{"cargo", "build", "--release", "--locked", "--bin", name}
}

// Validate rejects configurations that would break a lifecycle guarantee.
func (c Config) Validate() error {
	if err := validateImageRef(c.BaseImage); err != nil {
		return err
	}
	if len(c.Trust.RefreshCommand) == 0 || len(c.Trust.InstallCommand) == 0 {
		return fmt.Errorf("config: trust commands must not be empty")
	}
	if len(c.Trust.Packages) == 0 {
		return fmt.Errorf("config: at least one trust package is required")
	}
	if len(c.Build.Command) == 0 {
		return fmt.Errorf("config: build command must not be empty")
	}
	return c.Environment().Validate()
}

// validateImageRef enforces a pinned, non-floating base image reference.
func validateImageRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("config: base image reference is empty")
	}
	tag := ""
	if i := strings.LastIndex(ref, ":"); i > 0 && !strings.Contains(ref[i+1:], "/") {
		tag = ref[i+1:]
	}
	if tag == "" {
		return fmt.Errorf("config: base image %q has no tag; pin an explicit version", ref)
	}
	if tag == "latest" {
		return fmt.Errorf("config: base image %q floats on :latest; pin an explicit version", ref)
	}
	return nil
}

// Environment builds the initial execution-environment value for a launch.
func (c Config) Environment() environ.Environment {
	return environ.Environment{
		BaseImage: c.BaseImage,
		WorkDir:   c.WorkDir,
		Service: environ.Service{
			Name:         c.Service.Name,
			ArtifactPath: c.Service.ArtifactPath,
			Args:         append([]string(nil), c.Service.Args...),
			Env:          append([]string(nil), c.Service.Env...),
		},
	}
}
