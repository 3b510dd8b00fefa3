package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-ini/ini"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Load reads the configuration file at path on top of Default and validates
// the result. Files ending in .ini use the INI layout, everything else is
// decoded as YAML.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".ini", ".conf":
		err = applyINI(cfg, data)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// applyINI overlays the INI sections onto cfg. update-delay is in seconds.
func applyINI(cfg *Config, data []byte) error {
	file, err := ini.Load(data)
	if err != nil {
		return err
	}

	if sec, err := file.GetSection("nfvo"); err == nil {
		cfg.NFVO.Host = stringKey(sec, "ip", cfg.NFVO.Host)
		cfg.NFVO.Port = sec.Key("port").MustInt(cfg.NFVO.Port)
		cfg.NFVO.HTTPS = sec.Key("https").MustBool(cfg.NFVO.HTTPS)
		cfg.NFVO.Username = stringKey(sec, "username", cfg.NFVO.Username)
		cfg.NFVO.Password = stringKey(sec, "password", cfg.NFVO.Password)
		if sec.HasKey("timeout") {
			cfg.NFVO.Timeout = time.Duration(sec.Key("timeout").MustInt(0)) * time.Second
		}
	}

	if sec, err := file.GetSection("system"); err == nil {
		if sec.HasKey("update-delay") {
			cfg.System.UpdateDelay = time.Duration(sec.Key("update-delay").MustInt(0)) * time.Second
		}
		cfg.System.CSARRoot = strings.TrimRight(stringKey(sec, "temp-csar-location", cfg.System.CSARRoot), "/")
		cfg.System.CatalogFile = stringKey(sec, "available-nsds-file-path", cfg.System.CatalogFile)
		cfg.System.OperatorPublicKey = stringKey(sec, "softfire-public-key", cfg.System.OperatorPublicKey)
		cfg.System.TenantsFile = stringKey(sec, "openstack-credentials-file", cfg.System.TenantsFile)
	}

	if sec, err := file.GetSection("database"); err == nil {
		if sec.HasKey("path") {
			cfg.Database.Path = sec.Key("path").String()
		} else if sec.HasKey("url") {
			cfg.Database.Path = sqlitePath(sec.Key("url").String())
		}
	}

	if sec, err := file.GetSection("logging"); err == nil {
		cfg.Logging.Level = stringKey(sec, "level", cfg.Logging.Level)
		cfg.Logging.Format = stringKey(sec, "format", cfg.Logging.Format)
		cfg.Logging.Output = stringKey(sec, "output", cfg.Logging.Output)
	}

	if sec, err := file.GetSection("policy"); err == nil {
		if sec.HasKey("dirs") {
			cfg.Policy.Dirs = sec.Key("dirs").Strings(",")
			cfg.Policy.Watch = sec.Key("watch").MustBool(false)
		}
		if sec.HasKey("disabled") {
			cfg.Policy.Disabled = sec.Key("disabled").Strings(",")
		}
	}

	return nil
}

func stringKey(sec *ini.Section, name, def string) string {
	if !sec.HasKey(name) {
		return def
	}
	return strings.TrimSpace(sec.Key(name).String())
}

// sqlitePath turns a database URL such as sqlite:////var/lib/x.db into a
// file path. Anything that is not a sqlite URL is returned as is.
func sqlitePath(url string) string {
	const scheme = "sqlite:///"
	if !strings.HasPrefix(url, scheme) {
		return url
	}
	path := strings.TrimPrefix(url, scheme)
	if path == "" {
		return ":memory:"
	}
	return path
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}
