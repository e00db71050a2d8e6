// Package targets resolves publish destinations and their credentials from a
// TOML directory file kept outside the main configuration.
package targets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Target describes one publishable site and the credentials the publisher
// uses against its REST API.
type Target struct {
	Host        string  `toml:"host"`
	BaseURL     string  `toml:"base_url"`
	Username    string  `toml:"username"`
	AppPassword string  `toml:"app_password"`
	Categories  []int64 `toml:"categories"`
	Tags        []int64 `toml:"tags"`
}

type directoryFile struct {
	Targets []Target `toml:"target"`
}

// Directory is an immutable lookup of publish targets keyed by host.
type Directory struct {
	byHost map[string]Target
}

// ErrUnknownTarget is returned when a submission names a host the directory
// does not carry.
var ErrUnknownTarget = errors.New("unknown publish target")

// Load reads and validates the target directory file.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Directory from raw TOML.
func Parse(data []byte) (*Directory, error) {
	var file directoryFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse targets file: %w", err)
	}
	if len(file.Targets) == 0 {
		return nil, errors.New("targets file defines no targets")
	}

	byHost := make(map[string]Target, len(file.Targets))
	for i, target := range file.Targets {
		host := normalizeHost(target.Host)
		if host == "" {
			return nil, fmt.Errorf("target %d: host is required", i+1)
		}
		if strings.TrimSpace(target.BaseURL) == "" {
			return nil, fmt.Errorf("target %q: base_url is required", host)
		}
		if strings.TrimSpace(target.Username) == "" || strings.TrimSpace(target.AppPassword) == "" {
			return nil, fmt.Errorf("target %q: username and app_password are required", host)
		}
		if _, exists := byHost[host]; exists {
			return nil, fmt.Errorf("target %q: duplicate host", host)
		}
		target.Host = host
		target.BaseURL = strings.TrimRight(strings.TrimSpace(target.BaseURL), "/")
		byHost[host] = target
	}
	return &Directory{byHost: byHost}, nil
}

// Lookup returns the target for a host.
func (d *Directory) Lookup(host string) (Target, error) {
	if d == nil {
		return Target{}, ErrUnknownTarget
	}
	target, ok := d.byHost[normalizeHost(host)]
	if !ok {
		return Target{}, fmt.Errorf("%w: %s", ErrUnknownTarget, host)
	}
	return target, nil
}

// Hosts returns the configured hosts in no particular order.
func (d *Directory) Hosts() []string {
	if d == nil {
		return nil
	}
	hosts := make([]string, 0, len(d.byHost))
	for host := range d.byHost {
		hosts = append(hosts, host)
	}
	return hosts
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}
