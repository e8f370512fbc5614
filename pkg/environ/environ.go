// Package environ models the container execution environment as an explicit
// value that provisioning steps take and return, instead of mutating ambient
// process state. Each step receives the environment produced by the previous
// one, so a failed step leaves no half-applied value behind.
package environ

import (
	"fmt"
	"path/filepath"
	"time"
)

// Service describes the opaque executable the supervisor builds and hands
// control to. Its runtime behavior is owned entirely by the binary itself.
type Service struct {
	// Name is the package/binary name passed to the build tool.
	Name string `json:"name" yaml:"name"`
	// ArtifactPath is the deterministic path of the built executable,
	// relative to the working directory.
	ArtifactPath string `json:"artifact_path" yaml:"artifact_path"`
	// Args are appended to the argv of the exec'd binary.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`
	// Env entries (KEY=VALUE) are appended to the inherited environment.
	Env []string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Environment is the execution-environment value threaded through the
// lifecycle pipeline. Steps never mutate the value they receive; they return
// an updated copy.
type Environment struct {
	BaseImage string  `json:"base_image" yaml:"base_image"`
	WorkDir   string  `json:"workdir" yaml:"workdir"`
	Service   Service `json:"service" yaml:"service"`

	// Provisioning marks, set by the steps that performed them.
	IndexRefreshedAt time.Time `json:"index_refreshed_at,omitzero" yaml:"index_refreshed_at,omitempty"`
	TrustInstalled   bool      `json:"trust_installed" yaml:"trust_installed"`
	BuiltAt          time.Time `json:"built_at,omitzero" yaml:"built_at,omitempty"`
}

// ArtifactAbs returns the absolute path of the built executable.
func (e Environment) ArtifactAbs() string {
	if filepath.IsAbs(e.Service.ArtifactPath) {
		return e.Service.ArtifactPath
	}
	return filepath.Join(e.WorkDir, e.Service.ArtifactPath)
}

// Clone returns a deep copy so a step can update its own value without
// aliasing the caller's slices.
func (e Environment) Clone() Environment {
	out := e
	out.Service.Args = append([]string(nil), e.Service.Args...)
	out.Service.Env = append([]string(nil), e.Service.Env...)
	return out
}

// Validate checks the fields every stage depends on.
func (e Environment) Validate() error {
	if e.BaseImage == "" {
		return fmt.Errorf("environment: base image reference is empty")
	}
	if e.WorkDir == "" {
		return fmt.Errorf("environment: working directory is empty")
	}
	if !filepath.IsAbs(e.WorkDir) {
		return fmt.Errorf("environment: working directory %q is not absolute", e.WorkDir)
	}
	if e.Service.Name == "" {
		return fmt.Errorf("environment: service name is empty")
	}
	if e.Service.ArtifactPath == "" {
		return fmt.Errorf("environment: artifact path is empty")
	}
	return nil
}
