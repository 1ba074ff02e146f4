// Copyright 2024 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds r600cs configuration: global flags shared by every
// subcommand, and minimizer settings read from a file.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/r600cs/r600cs/pkg/drm"
	"github.com/r600cs/r600cs/pkg/log"
	yaml "gopkg.in/yaml.v2"
)

// Config holds the global flags. Fields are populated by NewFromFlags from
// the flag named in their tag.
type Config struct {
	// Debug enables debug logging.
	Debug bool `flag:"debug"`

	// LogFilename is the file logs are written to. Empty means stderr.
	LogFilename string `flag:"log"`

	// LogFormat is "text" or "json".
	LogFormat string `flag:"log-format"`

	// Device is the DRM device used for submission.
	Device string `flag:"device"`
}

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.String("log", "", "file path where log messages are written, default is stderr.")
	flagSet.String("log-format", "text", "log format: text (default) or json.")
	flagSet.String("device", drm.DefaultPath, "DRM device used to submit command streams.")
}

// NewFromFlags creates a new Config with values coming from the given flag
// set. flagSet must have been passed to RegisterFlags.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}

	obj := reflect.ValueOf(conf).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		obj.Field(i).Set(reflect.ValueOf(fl.Value.(flag.Getter).Get()))
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	return nil
}

// Log logs the configuration at debug level.
func (c *Config) Log() {
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		log.Debugf("Config.%s (--%s): %v", st.Field(i).Name, st.Field(i).Tag.Get("flag"), obj.Field(i).Interface())
	}
}

// Minimize configures the minimize subcommand.
type Minimize struct {
	// Oracle is the command run on each trial. An argument equal to "{}" is
	// replaced by the trial capture path; otherwise the path is appended.
	Oracle []string `toml:"oracle" yaml:"oracle"`

	// Timeout bounds each oracle run. Zero means no limit.
	Timeout time.Duration `toml:"timeout" yaml:"timeout"`

	// Parallelism is the maximum number of concurrent oracle runs. Zero
	// means one per CPU.
	Parallelism int `toml:"parallelism" yaml:"parallelism"`

	// Keep lists packet indices that are never removed.
	Keep []int `toml:"keep" yaml:"keep"`

	// CaptureExt is the extension of trial captures, which selects their
	// format. Empty means binary.
	CaptureExt string `toml:"capture_ext" yaml:"capture_ext"`

	// TempDir holds trial captures. Empty means the system default.
	TempDir string `toml:"temp_dir" yaml:"temp_dir"`
}

// LoadMinimize reads minimizer settings from path. Files ending in .toml are
// TOML; .yaml and .yml are YAML. Unknown keys are errors in both.
func LoadMinimize(path string) (*Minimize, error) {
	var m Minimize
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.DecodeFile(path, &m)
		if err != nil {
			return nil, fmt.Errorf("unable to decode %q: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unable to decode %q: unknown keys %v", path, undecoded)
		}
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("unable to open config: %w", err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.SetStrict(true)
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("unable to decode %q: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unknown config format %q, must be .toml, .yaml or .yml", path)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%q: %w", path, err)
	}
	return &m, nil
}

// Validate checks that m can drive a minimization.
func (m *Minimize) Validate() error {
	if len(m.Oracle) == 0 {
		return fmt.Errorf("no oracle command")
	}
	if m.Timeout < 0 {
		return fmt.Errorf("negative timeout %v", m.Timeout)
	}
	if m.Parallelism < 0 {
		return fmt.Errorf("negative parallelism %d", m.Parallelism)
	}
	for _, k := range m.Keep {
		if k < 0 {
			return fmt.Errorf("negative packet index %d in keep", k)
		}
	}
	return nil
}
