package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml"
)

// Logging contains the logging configuration.
type Logging struct {
	Format string `toml:"format,omitempty"`
	Level  string `toml:"level,omitempty"`
}

// Replica describes one locally held replicated area.
type Replica struct {
	// Root is the area's root DN.
	Root string `toml:"root,omitempty"`
	// ID is the local replica identity within the area.
	ID uint16 `toml:"id,omitempty"`
	// Engine is the backing storage family, "bdb" (the default) or
	// "lmdb". Flow-control defaults differ between the two.
	Engine string `toml:"engine,omitempty"`
}

// Agreement describes one replication agreement toward a consumer. The
// fields mirror the stored agreement entry's attributes.
type Agreement struct {
	Name string `toml:"name,omitempty"`
	Root string `toml:"root,omitempty"`

	Host          string `toml:"host,omitempty"`
	Port          int64  `toml:"port,omitempty"`
	TransportInfo string `toml:"transport_info,omitempty"`

	BindDN      string `toml:"bind_dn,omitempty"`
	Credentials string `toml:"credentials,omitempty"`
	BindMethod  string `toml:"bind_method,omitempty"`

	BootstrapBindDN        string `toml:"bootstrap_bind_dn,omitempty"`
	BootstrapCredentials   string `toml:"bootstrap_credentials,omitempty"`
	BootstrapBindMethod    string `toml:"bootstrap_bind_method,omitempty"`
	BootstrapTransportInfo string `toml:"bootstrap_transport_info,omitempty"`

	ReplicatedAttributeList      string `toml:"replicated_attribute_list,omitempty"`
	ReplicatedAttributeListTotal string `toml:"replicated_attribute_list_total,omitempty"`
	StripAttrs                   string `toml:"strip_attrs,omitempty"`

	Schedule []string `toml:"schedule,omitempty"`

	Timeout             int64  `toml:"timeout,omitempty"`
	BusyWaitTime        int64  `toml:"busy_wait_time,omitempty"`
	SessionPauseTime    int64  `toml:"session_pause_time,omitempty"`
	FlowControlWindow   int64  `toml:"flow_control_window,omitempty"`
	FlowControlPause    int64  `toml:"flow_control_pause,omitempty"`
	WaitForAsyncResults int64  `toml:"wait_for_async_results,omitempty"`
	ProtocolTimeout     int64  `toml:"protocol_timeout,omitempty"`
	IgnoreMissingChange string `toml:"ignore_missing_change,omitempty"`

	// Enabled is "on" or "off"; empty means on.
	Enabled string `toml:"enabled,omitempty"`
	// BeginRefresh set to "start" makes the agreement's first session a
	// total update.
	BeginRefresh string `toml:"begin_refresh,omitempty"`
}

// Config is a container for everything found in the TOML config file.
type Config struct {
	// LocalHost and the local ports identify this supplier; they seed the
	// per-agreement session-id prefix.
	LocalHost       string `toml:"local_host,omitempty" split_words:"true"`
	LocalPort       int    `toml:"local_port,omitempty" split_words:"true"`
	LocalSecurePort int    `toml:"local_secure_port,omitempty" split_words:"true"`

	PrometheusListenAddr string `toml:"prometheus_listen_addr,omitempty" split_words:"true"`

	// DefaultExcludeSpec is the process-wide fractional exclude
	// specification merged under every agreement's own list.
	DefaultExcludeSpec string `toml:"default_exclude_spec,omitempty" split_words:"true"`

	Logging    Logging      `toml:"logging,omitempty"`
	Replicas   []*Replica   `toml:"replica,omitempty"`
	Agreements []*Agreement `toml:"agreement,omitempty"`
}

// FromFile loads the config from the file path and the environment.
// Environment variables take precedence over the file.
func FromFile(filePath string) (Config, error) {
	b, err := os.ReadFile(filePath)
	if err != nil {
		return Config{}, err
	}

	conf := &Config{}
	if err := toml.Unmarshal(b, conf); err != nil {
		return Config{}, fmt.Errorf("load toml: %v", err)
	}

	if err := envconfig.Process("replmgr", conf); err != nil {
		return Config{}, fmt.Errorf("envconfig: %v", err)
	}

	return *conf, nil
}

var (
	errNoLocalHost          = errors.New("no local host configured")
	errNoReplicas           = errors.New("no replicated areas configured")
	errReplicaWithoutRoot   = errors.New("all replicated areas must have a root DN")
	errReplicaWithoutID     = errors.New("all replicated areas must have a non-zero replica id")
	errReplicasNotUnique    = errors.New("replicated areas must have unique root DNs")
	errAgreementUnnamed     = errors.New("all agreements must have a name")
	errAgreementsNotUnique  = errors.New("agreements must have unique names")
	errAgreementUnknownRoot = errors.New("agreement references an unconfigured replicated area")
)

// Validate establishes if the config is valid.
func (c *Config) Validate() error {
	if c.LocalHost == "" {
		return errNoLocalHost
	}

	if len(c.Replicas) == 0 {
		return errNoReplicas
	}

	roots := make(map[string]struct{}, len(c.Replicas))
	for _, r := range c.Replicas {
		if r.Root == "" {
			return errReplicaWithoutRoot
		}
		if r.ID == 0 {
			return fmt.Errorf("replicated area %q: %w", r.Root, errReplicaWithoutID)
		}
		switch r.Engine {
		case "", "bdb", "lmdb":
		default:
			return fmt.Errorf("replicated area %q: invalid engine %q", r.Root, r.Engine)
		}
		if _, ok := roots[r.Root]; ok {
			return fmt.Errorf("replicated area %q: %w", r.Root, errReplicasNotUnique)
		}
		roots[r.Root] = struct{}{}
	}

	names := make(map[string]struct{}, len(c.Agreements))
	for _, a := range c.Agreements {
		if a.Name == "" {
			return errAgreementUnnamed
		}
		if _, ok := names[a.Name]; ok {
			return fmt.Errorf("agreement %q: %w", a.Name, errAgreementsNotUnique)
		}
		names[a.Name] = struct{}{}

		if _, ok := roots[a.Root]; !ok {
			return fmt.Errorf("agreement %q (root %q): %w", a.Name, a.Root, errAgreementUnknownRoot)
		}
	}

	return nil
}
