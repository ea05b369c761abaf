package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
)

var validPromptModes = []string{"terminal", "auto_approve", "auto_deny", "off"}

// Validate checks the structural validity of a Config.
// It verifies the version field, the gateway bind address, the prompt mode,
// sweep settings, and every tool-server entry.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.Gateway.Bind); err != nil {
		errs = append(errs, fmt.Errorf("config: invalid gateway bind address %q", cfg.Gateway.Bind))
	}

	if !slices.Contains(validPromptModes, cfg.Prompt.Mode) {
		errs = append(errs, fmt.Errorf("config: unknown prompt mode %q (supported: %v)", cfg.Prompt.Mode, validPromptModes))
	}

	if cfg.Sweep.Schedule != "" && cfg.Sweep.MaxAge <= 0 {
		errs = append(errs, errors.New("config: sweep.max_age must be positive when a schedule is set"))
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("config: tracing.endpoint is required when tracing is enabled"))
	}

	errs = append(errs, validateServers(cfg.Servers)...)

	return errors.Join(errs...)
}

func validateServers(servers []ServerConfig) []error {
	var errs []error
	seen := make(map[string]struct{}, len(servers))

	for i, s := range servers {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("config: servers[%d]: name is required", i))
			continue
		}
		if _, dup := seen[s.Name]; dup {
			errs = append(errs, fmt.Errorf("config: duplicate server name %q", s.Name))
		}
		seen[s.Name] = struct{}{}

		switch s.Transport {
		case "stdio":
			if s.Command == "" {
				errs = append(errs, fmt.Errorf("config: server %q: command is required for stdio transport", s.Name))
			}
		case "http":
			if s.URL == "" {
				errs = append(errs, fmt.Errorf("config: server %q: url is required for http transport", s.Name))
			} else if _, err := url.Parse(s.URL); err != nil {
				errs = append(errs, fmt.Errorf("config: server %q: invalid url: %w", s.Name, err))
			}
		default:
			errs = append(errs, fmt.Errorf("config: server %q: unknown transport %q (supported: stdio, http)", s.Name, s.Transport))
		}

		if s.ConfirmAll && len(s.Confirm) > 0 {
			errs = append(errs, fmt.Errorf("config: server %q: confirm_all and confirm are mutually exclusive", s.Name))
		}
	}

	return errs
}
