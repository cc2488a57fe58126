package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultRefreshTimeout = 15 * time.Second
	defaultLoginPath      = "/login"
)

type SessionConfig interface {
	GetRefreshTimeout() time.Duration
	GetProactiveRefreshSkew() time.Duration
	GetLoginPath() string
	GetPublicPages() []string
}

// SessionFile is the YAML layout of CONFIG_FILE.
//
//	refresh_timeout: 10s
//	proactive_refresh_skew: 30s
//	login_path: /login
//	public_pages: ["/", "/login", "/register/*"]
type SessionFile struct {
	RefreshTimeout       string   `yaml:"refresh_timeout"`
	ProactiveRefreshSkew string   `yaml:"proactive_refresh_skew"`
	LoginPath            string   `yaml:"login_path"`
	PublicPages          []string `yaml:"public_pages"`
}

type Session struct {
	refreshTimeout time.Duration
	refreshSkew    time.Duration
	loginPath      string
	publicPages    []string
}

var _ SessionConfig = Session{}

// LoadSession reads the session settings from path. An empty path yields the defaults.
func LoadSession(path string) (Session, error) {
	s := Session{
		refreshTimeout: defaultRefreshTimeout,
		loginPath:      defaultLoginPath,
	}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("reading %s: %w", path, err)
	}

	var file SessionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return s, fmt.Errorf("parsing %s: %w", path, err)
	}

	if file.RefreshTimeout != "" {
		d, err := time.ParseDuration(file.RefreshTimeout)
		if err != nil || d <= 0 {
			return s, fmt.Errorf("invalid refresh_timeout %q", file.RefreshTimeout)
		}
		s.refreshTimeout = d
	}
	if file.ProactiveRefreshSkew != "" {
		d, err := time.ParseDuration(file.ProactiveRefreshSkew)
		if err != nil || d < 0 {
			return s, fmt.Errorf("invalid proactive_refresh_skew %q", file.ProactiveRefreshSkew)
		}
		s.refreshSkew = d
	}
	if file.LoginPath != "" {
		s.loginPath = file.LoginPath
	}
	s.publicPages = file.PublicPages
	return s, nil
}

func (s Session) GetRefreshTimeout() time.Duration {
	return s.refreshTimeout
}

// GetProactiveRefreshSkew returns zero when proactive refresh is disabled.
func (s Session) GetProactiveRefreshSkew() time.Duration {
	return s.refreshSkew
}

func (s Session) GetLoginPath() string {
	return s.loginPath
}

// GetPublicPages returns nil unless the config file overrides the built-in list.
func (s Session) GetPublicPages() []string {
	return s.publicPages
}
