// Copyright 2020-2022 The OS-NVR Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
	"gopkg.in/yaml.v3"
)

// ConfigEnv stores the recovery environment.
type ConfigEnv struct {
	// Directory searched for unfinished recordings.
	RecordingsDir string `yaml:"recordingsDir"`

	// Log database, empty disables it.
	LogDB string `yaml:"logDB"`

	// Recovery is skipped when less than MinFreeMB is available
	// on the recordings device. The moov of a long recording can
	// be several megabytes.
	MinFreeMB int64 `yaml:"minFreeMB"`

	// Number of recordings fixed in parallel.
	Workers int `yaml:"workers"`

	ConfigDir string `yaml:"-"`
}

// ErrPathNotAbsolute path is not absolute.
var ErrPathNotAbsolute = errors.New("path is not absolute")

// ErrInvalidValue invalid configuration value.
var ErrInvalidValue = errors.New("invalid value")

const (
	defaultMinFreeMB = 16
	defaultWorkers   = 1
)

// NewConfigEnv return new environment configuration.
// Relative paths are resolved against the directory of envPath.
func NewConfigEnv(envPath string, envYAML []byte) (*ConfigEnv, error) {
	var env ConfigEnv

	if err := yaml.Unmarshal(envYAML, &env); err != nil {
		return nil, fmt.Errorf("unmarshal env.yaml: %w", err)
	}

	env.ConfigDir = filepath.Dir(envPath)

	if env.RecordingsDir == "" {
		env.RecordingsDir = filepath.Join(env.ConfigDir, "recordings")
	}
	if !filepath.IsAbs(env.RecordingsDir) {
		env.RecordingsDir = filepath.Join(env.ConfigDir, env.RecordingsDir)
	}
	if env.LogDB != "" && !filepath.IsAbs(env.LogDB) {
		env.LogDB = filepath.Join(env.ConfigDir, env.LogDB)
	}
	if env.MinFreeMB == 0 {
		env.MinFreeMB = defaultMinFreeMB
	}
	if env.Workers == 0 {
		env.Workers = defaultWorkers
	}

	if env.MinFreeMB < 0 {
		return nil, fmt.Errorf("minFreeMB %v: %w", env.MinFreeMB, ErrInvalidValue)
	}
	if env.Workers < 0 {
		return nil, fmt.Errorf("workers %v: %w", env.Workers, ErrInvalidValue)
	}
	if !filepath.IsAbs(env.RecordingsDir) {
		return nil, fmt.Errorf("recordingsDir '%v': %w", env.RecordingsDir, ErrPathNotAbsolute)
	}

	return &env, nil
}

// ReadConfigEnv reads and parses the file at envPath.
func ReadConfigEnv(envPath string) (*ConfigEnv, error) {
	envYAML, err := os.ReadFile(envPath)
	if err != nil {
		return nil, fmt.Errorf("read env.yaml: %w", err)
	}
	return NewConfigEnv(envPath, envYAML)
}

// PrepareEnvironment prepares directories.
func (env ConfigEnv) PrepareEnvironment() error {
	err := os.MkdirAll(env.RecordingsDir, 0o700)
	if err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create recordings directory: %v: %w", env.RecordingsDir, err)
	}
	if env.LogDB != "" {
		err := os.MkdirAll(filepath.Dir(env.LogDB), 0o700)
		if err != nil && !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create log directory: %w", err)
		}
	}
	return nil
}

// MinFreeBytes returns MinFreeMB in bytes.
func (env ConfigEnv) MinFreeBytes() uint64 {
	return uint64(env.MinFreeMB) * uint64(megabyte)
}

// DiskUsage of the device holding a path.
type DiskUsage struct {
	Free      uint64
	Total     uint64
	Percent   int
	Formatted string
}

// DiskUsageFunc is replaced in tests.
type DiskUsageFunc func(path string) (DiskUsage, error)

// GetDiskUsage returns the usage of the device holding path.
func GetDiskUsage(path string) (DiskUsage, error) {
	stat, err := disk.Usage(path)
	if err != nil {
		return DiskUsage{}, fmt.Errorf("disk usage: %w", err)
	}
	return DiskUsage{
		Free:      stat.Free,
		Total:     stat.Total,
		Percent:   int(stat.UsedPercent),
		Formatted: formatDiskUsage(float64(stat.Free)),
	}, nil
}

const (
	kilobyte float64 = 1000
	megabyte         = kilobyte * 1000
	gigabyte         = megabyte * 1000
	terabyte         = gigabyte * 1000
)

func formatDiskUsage(used float64) string {
	switch {
	case used < 1000*megabyte:
		return fmt.Sprintf("%.0fMB", used/megabyte)
	case used < 10*gigabyte:
		return fmt.Sprintf("%.2fGB", used/gigabyte)
	case used < 100*gigabyte:
		return fmt.Sprintf("%.1fGB", used/gigabyte)
	case used < 1000*gigabyte:
		return fmt.Sprintf("%.0fGB", used/gigabyte)
	case used < 10*terabyte:
		return fmt.Sprintf("%.2fTB", used/terabyte)
	case used < 100*terabyte:
		return fmt.Sprintf("%.1fTB", used/terabyte)
	default:
		return fmt.Sprintf("%.0fTB", used/terabyte)
	}
}
