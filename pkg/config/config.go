package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"modernc.org/libqbe"
)

type Feature int

const (
	FeatWith Feature = iota
	FeatCompoundOps
	FeatLiteralSuffix
	FeatCComments
	FeatCount
)

type Warning int

const (
	WarnShadow Warning = iota
	WarnUnreachableCode
	WarnMissingReturn
	WarnUnusedCapture
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features    map[Feature]Info
	Warnings    map[Warning]Info
	FeatureMap  map[string]Feature
	WarningMap  map[string]Warning
	BackendName string
	QbeTarget   string
	TargetArch  string
	WordSize    int
	CC          string
	StagingPath string
	LinkerArgs  []string
	Log         io.Writer
}

func NewConfig() *Config {
	cfg := &Config{
		Features:    make(map[Feature]Info),
		Warnings:    make(map[Warning]Info),
		FeatureMap:  make(map[string]Feature),
		WarningMap:  make(map[string]Warning),
		BackendName: "c",
		CC:          "cc",
		Log:         os.Stderr,
	}

	features := map[Feature]Info{
		FeatWith:          {"with", true, "Allow `with` capture clauses on functions and the program."},
		FeatCompoundOps:   {"compound-ops", true, "Recognize compound assignment operators like '+='."},
		FeatLiteralSuffix: {"literal-suffix", true, "Allow typed literal suffixes such as `7i64` or `1.5f32`."},
		FeatCComments:     {"c-comments", true, "Recognize C-style '//' and '/* */' comments."},
	}

	warnings := map[Warning]Info{
		WarnShadow:          {"shadow", false, "Warn when a declaration shadows an outer binding."},
		WarnUnreachableCode: {"unreachable-code", true, "Warn about statements following a return."},
		WarnMissingReturn:   {"missing-return", true, "Warn when a function with a result type does not end in a return."},
		WarnUnusedCapture:   {"unused-capture", true, "Warn about `with` captures that are never referenced."},
		WarnExtra:           {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

// DefaultStagingPath is where the rendered target source is written when no
// staging path is configured.
func (c *Config) DefaultStagingPath() string {
	if c.StagingPath != "" {
		return c.StagingPath
	}
	if c.BackendName == "qbe" {
		return "out.s"
	}
	return "out.c"
}

// SetTarget configures the QBE target used by the qbe backend.
func (c *Config) SetTarget(goos, goarch, qbeTarget string) {
	if qbeTarget == "" {
		c.QbeTarget = libqbe.DefaultTarget(goos, goarch)
		c.infof("no target specified, defaulting to host target '%s'", c.QbeTarget)
	} else {
		c.QbeTarget = qbeTarget
		c.infof("using specified target '%s'", c.QbeTarget)
	}

	c.TargetArch = goarch

	switch c.QbeTarget {
	case "amd64_sysv", "amd64_apple", "arm64", "arm64_apple", "rv64":
		c.WordSize = 8
	default:
		c.infof("warning: unrecognized QBE target '%s', assuming 64-bit words", c.QbeTarget)
		c.WordSize = 8
	}
}

func (c *Config) infof(format string, args ...interface{}) {
	if c.Log == nil {
		return
	}
	fmt.Fprintf(c.Log, "rascalc: info: "+format+"\n", args...)
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// ApplyFlag applies a single -W<name>, -Wno-<name>, -F<name> or -Fno-<name>
// toggle. Unknown names are reported as an error.
func (c *Config) ApplyFlag(flag string) error {
	trimmed := strings.TrimPrefix(flag, "-")

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name, isWarning = strings.TrimPrefix(trimmed, "W"), true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
	default:
		name, isWarning = trimmed, true
	}

	enable := !strings.HasPrefix(name, "no-")
	name = strings.TrimPrefix(name, "no-")

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, enable)
		}
		return nil
	}

	if isWarning {
		w, ok := c.WarningMap[name]
		if !ok {
			return fmt.Errorf("unknown warning '%s'", name)
		}
		c.SetWarning(w, enable)
		return nil
	}
	f, ok := c.FeatureMap[name]
	if !ok {
		return fmt.Errorf("unknown feature '%s'", name)
	}
	c.SetFeature(f, enable)
	return nil
}

// ProcessFlags applies warning and feature toggles; `all` toggles go first so
// individual ones can override them.
func (c *Config) ProcessFlags(warnings, features []string) error {
	for _, w := range warnings {
		if w == "all" || w == "no-all" {
			if err := c.ApplyFlag("-W" + w); err != nil {
				return err
			}
		}
	}
	for _, w := range warnings {
		if w != "all" && w != "no-all" {
			if err := c.ApplyFlag("-W" + w); err != nil {
				return err
			}
		}
	}
	for _, f := range features {
		if err := c.ApplyFlag("-F" + f); err != nil {
			return err
		}
	}
	return nil
}

// File is the on-disk shape of a rascal.yaml project file.
type File struct {
	Backend    string          `yaml:"backend"`
	Target     string          `yaml:"target"`
	CC         string          `yaml:"cc"`
	Staging    string          `yaml:"staging"`
	LinkerArgs []string        `yaml:"linker-args"`
	Warnings   map[string]bool `yaml:"warnings"`
	Features   map[string]bool `yaml:"features"`
}

// LoadFile reads a project file and applies it on top of the current settings.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	return c.Apply(data)
}

// Apply decodes a YAML project file and applies it.
func (c *Config) Apply(data []byte) error {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	if f.Backend != "" {
		c.BackendName = f.Backend
	}
	if f.Target != "" {
		c.QbeTarget = f.Target
	}
	if f.CC != "" {
		c.CC = f.CC
	}
	if f.Staging != "" {
		c.StagingPath = f.Staging
	}
	c.LinkerArgs = append(c.LinkerArgs, f.LinkerArgs...)

	for name, on := range f.Warnings {
		w, ok := c.WarningMap[name]
		if !ok {
			return fmt.Errorf("config: unknown warning '%s'", name)
		}
		c.SetWarning(w, on)
	}
	for name, on := range f.Features {
		ft, ok := c.FeatureMap[name]
		if !ok {
			return fmt.Errorf("config: unknown feature '%s'", name)
		}
		c.SetFeature(ft, on)
	}
	return nil
}

// PrintFeatures and PrintWarnings list every toggle with its current state.
func (c *Config) PrintFeatures(w io.Writer) {
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		fmt.Fprintf(w, "  -F%-18s %-5v %s\n", info.Name, info.Enabled, info.Description)
	}
}

func (c *Config) PrintWarnings(w io.Writer) {
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		fmt.Fprintf(w, "  -W%-18s %-5v %s\n", info.Name, info.Enabled, info.Description)
	}
}
