// Package kconfig reads the kernel boot configuration: CPU count, ramdisk
// module paths, the initial spawn list, and logging setup. The shape and
// the gcfg-based loading path are carried over from manager/config.go's
// cfgType/GetConfig, trading process-supervisor fields for boot fields.
package kconfig

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gravwell/gcfg"
)

const (
	maxConfigSize int64 = 1024 * 1024 * 4

	envLogLevel   = `GHOST_LOG_LEVEL`
	envCPUCount   = `GHOST_CPU_COUNT`
	defaultLogLvl = `INFO`
)

// spawnReadCfg is one [Spawn "name"] block: a task the kernel starts
// itself once tasking and the root filesystem delegate are up.
type spawnReadCfg struct {
	Path           string // path inside the ramdisk to the ELF binary
	Security_Level string // kernel | driver | application
	Args           string // unit-separator framed CLI args, see spec §6
	Working_Dir    string
}

type globalReadCfg struct {
	Cpu_Count      int
	Log_File       string
	Log_Level      string
	Ramdisk_Module string
}

type cfgType struct {
	Global globalReadCfg
	Spawn  map[string]*spawnReadCfg
}

// global mirrors globalReadCfg after defaulting/validation; kept as a
// distinct type so zero values read clearly at call sites.
type global struct {
	CPUCount      int
	LogFile       string
	LogLevel      string
	RamdiskModule string
}

// SpawnEntry is one resolved entry of the initial spawn list.
type SpawnEntry struct {
	Name          string
	Path          string
	SecurityLevel string
	Args          string
	WorkingDir    string
}

// Config is the fully validated, defaulted boot configuration.
type Config struct {
	CPUCount      int
	LogFile       string
	LogLevel      string
	RamdiskModule string
	Spawns        []SpawnEntry
}

var ErrNoSpawns = errors.New("boot config specifies no initial processes")

// Load reads and validates a boot configuration file. No environment
// variables are consulted; the file alone decides the result.
func Load(path string) (Config, error) {
	fin, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer fin.Close()
	return loadFrom(fin)
}

func loadFrom(r io.Reader) (Config, error) {
	lr := io.LimitReader(r, maxConfigSize+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return Config{}, err
	}
	if int64(len(data)) > maxConfigSize {
		return Config{}, errors.New("boot config file far too large")
	}

	var raw cfgType
	if err := gcfg.ReadStringInto(&raw, string(data)); err != nil {
		return Config{}, err
	}

	cfg := Config{
		CPUCount:      raw.Global.Cpu_Count,
		LogFile:       raw.Global.Log_File,
		LogLevel:      strings.ToUpper(raw.Global.Log_Level),
		RamdiskModule: raw.Global.Ramdisk_Module,
	}
	if cfg.LogLevel == `` {
		cfg.LogLevel = defaultLogLvl
	}
	if cfg.CPUCount <= 0 {
		cfg.CPUCount = 1
	}

	if v, ok := os.LookupEnv(envLogLevel); ok && v != `` {
		cfg.LogLevel = strings.ToUpper(v)
	}
	if v, ok := os.LookupEnv(envCPUCount); ok && v != `` {
		if n := atoiOrZero(v); n > 0 {
			cfg.CPUCount = n
		}
	}

	for name, s := range raw.Spawn {
		if s == nil {
			continue
		}
		sec := strings.ToLower(strings.TrimSpace(s.Security_Level))
		if sec == `` {
			sec = "application"
		}
		cfg.Spawns = append(cfg.Spawns, SpawnEntry{
			Name:          name,
			Path:          filepath.Clean(s.Path),
			SecurityLevel: sec,
			Args:          s.Args,
			WorkingDir:    filepath.Clean(s.Working_Dir),
		})
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if len(c.Spawns) == 0 {
		return ErrNoSpawns
	}
	for _, s := range c.Spawns {
		if strings.TrimSpace(s.Path) == `` {
			return errors.New("spawn block missing path: " + s.Name)
		}
		switch s.SecurityLevel {
		case "kernel", "driver", "application":
		default:
			return errors.New("spawn block has invalid security level: " + s.Name)
		}
	}
	return nil
}

func atoiOrZero(s string) (n int) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return
}
