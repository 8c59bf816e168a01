// Package sftp provides a connector that runs batches of SFTP commands through
// an external sftp command-line client.
package sftp

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/eugenetaranov/sftpconn/internal/connector"
)

// MBToKbit converts a megabyte-denominated bandwidth limit into the kilobits
// the sftp -l flag expects.
const MBToKbit = 8000

// LogLevel selects the verbosity of the sftp client, from 0 (quiet) to 4.
type LogLevel int

// Log levels accepted by the connector.
const (
	LogLevel0 LogLevel = iota
	LogLevel1
	LogLevel2
	LogLevel3
	LogLevel4
)

// Valid reports whether l is one of the known log levels.
func (l LogLevel) Valid() bool {
	return l >= LogLevel0 && l <= LogLevel4
}

// UnmarshalJSON accepts both numbers and numeric strings.
func (l *LogLevel) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return l.set(raw)
}

// UnmarshalYAML accepts both numbers and numeric strings.
func (l *LogLevel) UnmarshalYAML(value *yaml.Node) error {
	return l.set(value.Value)
}

func (l *LogLevel) set(raw any) error {
	switch v := raw.(type) {
	case nil:
		*l = LogLevel0
	case float64:
		if v != math.Trunc(v) {
			return fmt.Errorf("log level must be an integer, got %v", v)
		}
		*l = LogLevel(v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" || s == "null" || s == "~" {
			*l = LogLevel0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("log level must be an integer, got %q", v)
		}
		*l = LogLevel(n)
	default:
		return fmt.Errorf("unsupported log level %v", raw)
	}
	return nil
}

// IPType forces the address family sftp connects over.
type IPType string

// IP types accepted by the connector. The zero value leaves the choice to ssh.
const (
	IPTypeUnset IPType = ""
	IPTypeIPv4  IPType = "ipv4"
	IPTypeIPv6  IPType = "ipv6"
)

// Valid reports whether t is one of the known IP types.
func (t IPType) Valid() bool {
	switch t {
	case IPTypeUnset, IPTypeIPv4, IPTypeIPv6:
		return true
	}
	return false
}

// Bandwidth is a bandwidth limit expressed in megabyte-equivalent units. It
// decodes from numbers as well as numeric strings.
type Bandwidth float64

// UnmarshalJSON accepts both numbers and numeric strings.
func (b *Bandwidth) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return b.set(raw)
}

// UnmarshalYAML accepts both numbers and numeric strings.
func (b *Bandwidth) UnmarshalYAML(value *yaml.Node) error {
	return b.set(value.Value)
}

func (b *Bandwidth) set(raw any) error {
	switch v := raw.(type) {
	case nil:
		*b = 0
	case float64:
		*b = Bandwidth(v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" || s == "null" || s == "~" {
			*b = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("bandwidth limit must be a number, got %q", v)
		}
		*b = Bandwidth(f)
	default:
		return fmt.Errorf("unsupported bandwidth limit %v", raw)
	}
	return nil
}

// Kbit returns the limit converted to kilobits, rounded to the nearest integer.
func (b Bandwidth) Kbit() int64 {
	return int64(math.Round(float64(b) * MBToKbit))
}

// inRange reports whether b converts to a non-negative kbit value that fits
// in an int64.
func (b Bandwidth) inRange() bool {
	kbit := float64(b) * MBToKbit
	if math.IsNaN(kbit) || math.IsInf(kbit, 0) {
		return false
	}
	return kbit >= 0 && kbit < math.MaxInt64
}

// Config is the raw configuration of one outgoing SFTP connection as it arrives
// from the platform or a definitions file.
type Config struct {
	ID       int    `json:"id" yaml:"id" validate:"gte=0"`
	Name     string `json:"name" yaml:"name" validate:"required"`
	IsActive bool   `json:"is_active" yaml:"is_active"`

	// Host may be an ssh_config alias, so only option-like and blank-containing
	// values are rejected.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
	Port int    `json:"port,omitempty" yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`

	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Secret   string `json:"secret,omitempty" yaml:"secret,omitempty"`

	SFTPCommand string `json:"sftp_command" yaml:"sftp_command" validate:"required"`
	PingCommand string `json:"ping_command" yaml:"ping_command" validate:"required"`

	IdentityFile  string `json:"identity_file,omitempty" yaml:"identity_file,omitempty"`
	SSHConfigFile string `json:"ssh_config_file,omitempty" yaml:"ssh_config_file,omitempty"`

	LogLevel    LogLevel `json:"log_level" yaml:"log_level"`
	ShouldFlush bool     `json:"should_flush" yaml:"should_flush"`
	BufferSize  int      `json:"buffer_size" yaml:"buffer_size" validate:"gt=0"`

	// SSHOptions is kept with the definition but not passed to the client.
	SSHOptions  string `json:"ssh_options,omitempty" yaml:"ssh_options,omitempty"`
	ForceIPType IPType `json:"force_ip_type,omitempty" yaml:"force_ip_type,omitempty"`

	ShouldPreserveMeta   bool `json:"should_preserve_meta" yaml:"should_preserve_meta"`
	IsCompressionEnabled bool `json:"is_compression_enabled" yaml:"is_compression_enabled"`

	BandwidthLimit Bandwidth `json:"bandwidth_limit" yaml:"bandwidth_limit" validate:"gte=0"`
}

// Redacted returns a copy of c with credentials removed.
func (c Config) Redacted() Config {
	c.Password = ""
	c.Secret = ""
	return c
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their wire names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Definition is a validated, immutable connection definition.
type Definition struct {
	cfg  Config
	kbit int64
}

// NewDefinition validates cfg and returns the resulting definition. Every
// failure is reported as a *connector.ConfigurationError.
func NewDefinition(cfg Config) (*Definition, error) {
	if !cfg.LogLevel.Valid() {
		return nil, &connector.ConfigurationError{
			Field:  "log_level",
			Reason: fmt.Sprintf("unknown log level `%d`", cfg.LogLevel),
		}
	}
	if !cfg.ForceIPType.Valid() {
		return nil, &connector.ConfigurationError{
			Field:  "force_ip_type",
			Reason: fmt.Sprintf("unknown IP type `%s`", cfg.ForceIPType),
		}
	}

	if !cfg.BandwidthLimit.inRange() {
		return nil, &connector.ConfigurationError{
			Field:  "bandwidth_limit",
			Reason: fmt.Sprintf("out of range `%v`", float64(cfg.BandwidthLimit)),
		}
	}
	if err := checkHost(cfg.Host); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, toConfigurationError(err)
	}

	return &Definition{
		cfg:  cfg,
		kbit: cfg.BandwidthLimit.Kbit(),
	}, nil
}

// checkHost rejects hosts the client would parse as an option or split into
// several arguments.
func checkHost(host string) error {
	switch {
	case strings.HasPrefix(host, "-"):
		return &connector.ConfigurationError{Field: "host", Reason: fmt.Sprintf("must not start with `-`: %q", host)}
	case strings.IndexFunc(host, unicode.IsSpace) >= 0:
		return &connector.ConfigurationError{Field: "host", Reason: fmt.Sprintf("must not contain whitespace: %q", host)}
	}
	return nil
}

func toConfigurationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return &connector.ConfigurationError{Reason: err.Error()}
	}

	fe := verrs[0]
	var reason string
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "gt":
		reason = fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		reason = fmt.Sprintf("must not be less than %s", fe.Param())
	case "min", "max":
		reason = fmt.Sprintf("out of range (%s=%s)", fe.Tag(), fe.Param())
	default:
		reason = fmt.Sprintf("invalid value %v", fe.Value())
	}
	return &connector.ConfigurationError{Field: fe.Field(), Reason: reason}
}

// ID returns the connection id.
func (d *Definition) ID() int { return d.cfg.ID }

// Name returns the connection name.
func (d *Definition) Name() string { return d.cfg.Name }

// IsActive reports whether the connection accepts executions.
func (d *Definition) IsActive() bool { return d.cfg.IsActive }

// Host returns the remote host, or "" when the ssh config supplies it.
func (d *Definition) Host() string { return d.cfg.Host }

// Port returns the remote port, or 0 when unset.
func (d *Definition) Port() int { return d.cfg.Port }

// Username returns the remote user, or "".
func (d *Definition) Username() string { return d.cfg.Username }

// PingCommand returns the sub-command used for reachability checks.
func (d *Definition) PingCommand() string { return d.cfg.PingCommand }

// BandwidthLimitKbit returns the bandwidth limit in kilobits.
func (d *Definition) BandwidthLimitKbit() int64 { return d.kbit }

// Config returns a copy of the configuration the definition was built from.
func (d *Definition) Config() Config { return d.cfg }

// MarshalLogObject implements zapcore.ObjectMarshaler. Credentials are never logged.
func (d *Definition) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("id", d.cfg.ID)
	enc.AddString("name", d.cfg.Name)
	enc.AddBool("is_active", d.cfg.IsActive)
	if d.cfg.Host != "" {
		enc.AddString("host", d.cfg.Host)
	}
	if d.cfg.Port != 0 {
		enc.AddInt("port", d.cfg.Port)
	}
	if d.cfg.Username != "" {
		enc.AddString("username", d.cfg.Username)
	}
	enc.AddString("sftp_command", d.cfg.SFTPCommand)
	enc.AddInt("log_level", int(d.cfg.LogLevel))
	enc.AddInt("buffer_size", d.cfg.BufferSize)
	enc.AddInt64("bandwidth_limit_kbit", d.kbit)
	if d.cfg.ForceIPType != IPTypeUnset {
		enc.AddString("force_ip_type", string(d.cfg.ForceIPType))
	}
	return nil
}
