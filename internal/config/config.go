package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides (LEMP_DOMAIN, LEMP_MYSQL_ROOT_PASSWORD, ...).
const EnvPrefix = "LEMP"

// Config holds the desired state of the host being provisioned.
type Config struct {
	Domain       string `mapstructure:"domain" yaml:"domain" json:"domain"`
	FrontendRoot string `mapstructure:"frontend_root" yaml:"frontend_root" json:"frontend_root"`
	BackendRoot  string `mapstructure:"backend_root" yaml:"backend_root" json:"backend_root"`
	PHPVersion   string `mapstructure:"php_version" yaml:"php_version" json:"php_version"` // empty = detect

	MySQLRootPassword string `mapstructure:"mysql_root_password" yaml:"mysql_root_password" json:"mysql_root_password"`
	MySQLSocket       string `mapstructure:"mysql_socket" yaml:"mysql_socket" json:"mysql_socket"`

	WebUser  string `mapstructure:"web_user" yaml:"web_user" json:"web_user"`
	WebGroup string `mapstructure:"web_group" yaml:"web_group" json:"web_group"`

	NginxAvailableDir string `mapstructure:"nginx_available_dir" yaml:"nginx_available_dir" json:"nginx_available_dir"`
	NginxEnabledDir   string `mapstructure:"nginx_enabled_dir" yaml:"nginx_enabled_dir" json:"nginx_enabled_dir"`

	ComposerInstallerURL string `mapstructure:"composer_installer_url" yaml:"composer_installer_url" json:"composer_installer_url"`
	ComposerSignatureURL string `mapstructure:"composer_signature_url" yaml:"composer_signature_url" json:"composer_signature_url"`
	ComposerInstallDir   string `mapstructure:"composer_install_dir" yaml:"composer_install_dir" json:"composer_install_dir"`
	ComposerArgs         string `mapstructure:"composer_args" yaml:"composer_args" json:"composer_args"`

	StateDir   string `mapstructure:"state_dir" yaml:"state_dir" json:"state_dir"`
	LogFile    string `mapstructure:"log_file" yaml:"log_file" json:"log_file"`
	BackupKeep int    `mapstructure:"backup_keep" yaml:"backup_keep" json:"backup_keep"`
}

// Defaults mirrors the values the provisioning script shipped with.
func Defaults() Config {
	return Config{
		Domain:               "example.com",
		FrontendRoot:         "/var/www/frontend",
		BackendRoot:          "/var/www/backend",
		MySQLSocket:          "/var/run/mysqld/mysqld.sock",
		WebUser:              "www-data",
		WebGroup:             "www-data",
		NginxAvailableDir:    "/etc/nginx/sites-available",
		NginxEnabledDir:      "/etc/nginx/sites-enabled",
		ComposerInstallerURL: "https://getcomposer.org/installer",
		ComposerSignatureURL: "https://composer.github.io/installer.sig",
		ComposerInstallDir:   "/usr/local/bin",
		ComposerArgs:         "--quiet",
		StateDir:             "/var/lib/lemp-provision",
		LogFile:              "/var/log/lemp-provision.log",
		BackupKeep:           5,
	}
}

// LoadOptions selects the optional file sources.
type LoadOptions struct {
	ConfigFile string // YAML desired-state file; empty = none
	EnvFile    string // dotenv file; a missing file is ignored
}

// Load layers defaults, the YAML file, the dotenv file and LEMP_* env vars.
// Flags are applied by the caller on top of the result.
func Load(opts LoadOptions) (Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v, Defaults())

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("domain", d.Domain)
	v.SetDefault("frontend_root", d.FrontendRoot)
	v.SetDefault("backend_root", d.BackendRoot)
	v.SetDefault("php_version", d.PHPVersion)
	v.SetDefault("mysql_root_password", d.MySQLRootPassword)
	v.SetDefault("mysql_socket", d.MySQLSocket)
	v.SetDefault("web_user", d.WebUser)
	v.SetDefault("web_group", d.WebGroup)
	v.SetDefault("nginx_available_dir", d.NginxAvailableDir)
	v.SetDefault("nginx_enabled_dir", d.NginxEnabledDir)
	v.SetDefault("composer_installer_url", d.ComposerInstallerURL)
	v.SetDefault("composer_signature_url", d.ComposerSignatureURL)
	v.SetDefault("composer_install_dir", d.ComposerInstallDir)
	v.SetDefault("composer_args", d.ComposerArgs)
	v.SetDefault("state_dir", d.StateDir)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("backup_keep", d.BackupKeep)
}

var (
	phpVersionRE = regexp.MustCompile(`^\d+\.\d+$`)
	badDomainRE  = regexp.MustCompile(`[\s/;{}]`)
)

// Validate checks the values every command relies on.
func (c Config) Validate() error {
	if c.Domain == "" {
		return errors.New("domain is required")
	}
	if badDomainRE.MatchString(c.Domain) {
		return fmt.Errorf("domain %q contains invalid characters", c.Domain)
	}
	roots := map[string]string{
		"frontend_root":       c.FrontendRoot,
		"backend_root":        c.BackendRoot,
		"nginx_available_dir": c.NginxAvailableDir,
		"nginx_enabled_dir":   c.NginxEnabledDir,
		"state_dir":           c.StateDir,
	}
	for _, k := range []string{"frontend_root", "backend_root", "nginx_available_dir", "nginx_enabled_dir", "state_dir"} {
		if !filepath.IsAbs(roots[k]) {
			return fmt.Errorf("%s must be an absolute path, got %q", k, roots[k])
		}
	}
	if c.FrontendRoot == c.BackendRoot {
		return errors.New("frontend_root and backend_root must differ")
	}
	if c.PHPVersion != "" && !phpVersionRE.MatchString(c.PHPVersion) {
		return fmt.Errorf("php_version must look like MAJOR.MINOR, got %q", c.PHPVersion)
	}
	if c.WebUser == "" || c.WebGroup == "" {
		return errors.New("web_user and web_group are required")
	}
	if c.BackupKeep < 0 {
		return fmt.Errorf("backup_keep must be >= 0, got %d", c.BackupKeep)
	}
	return nil
}

// ValidateForApply adds the requirements that only matter when mutating the host.
func (c Config) ValidateForApply() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.MySQLRootPassword == "" {
		return fmt.Errorf("mysql_root_password is required (set %s_MYSQL_ROOT_PASSWORD or use --config)", EnvPrefix)
	}
	return nil
}

// Redacted returns a copy that is safe to print.
func (c Config) Redacted() Config {
	if c.MySQLRootPassword != "" {
		c.MySQLRootPassword = "********"
	}
	return c
}

// BackupDir is where site archives are written.
func (c Config) BackupDir() string { return filepath.Join(c.StateDir, "backups") }

// LockPath guards against concurrent runs.
func (c Config) LockPath() string { return filepath.Join(c.StateDir, "provision.lock") }
