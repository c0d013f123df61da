package sampler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/xtxerr/atmolog/config"
	"github.com/xtxerr/atmolog/internal/errors"
	"github.com/xtxerr/atmolog/internal/validation"
)

// =============================================================================
// SNMP Configuration
// =============================================================================

// SNMPConfig describes an SNMP agent exposing the three sensor values.
type SNMPConfig struct {
	Host string `yaml:"host"`
	Port uint16 `yaml:"port"`

	// OIDs
	HumidityOID    string `yaml:"humidity_oid"`
	TemperatureOID string `yaml:"temperature_oid"`
	PressureOID    string `yaml:"pressure_oid"`

	// Scale factors applied to the raw values. Zero means 1.
	// A Pa pressure source uses PressureScale 0.01.
	HumidityScale    float64 `yaml:"humidity_scale"`
	TemperatureScale float64 `yaml:"temperature_scale"`
	PressureScale    float64 `yaml:"pressure_scale"`

	// v2c
	Community string `yaml:"community"`

	// v3
	SecurityName  string `yaml:"security_name"`
	SecurityLevel string `yaml:"security_level"`
	AuthProtocol  string `yaml:"auth_protocol"`
	AuthPassword  string `yaml:"auth_password"`
	PrivProtocol  string `yaml:"priv_protocol"`
	PrivPassword  string `yaml:"priv_password"`
	ContextName   string `yaml:"context_name"`

	// Timing
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

// Validate checks the configuration.
func (c *SNMPConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: snmp host is required", errors.ErrInvalidConfig)
	}
	if c.HumidityOID == "" || c.TemperatureOID == "" || c.PressureOID == "" {
		return fmt.Errorf("%w: snmp needs humidity, temperature and pressure OIDs", errors.ErrInvalidConfig)
	}
	for _, oid := range []string{c.HumidityOID, c.TemperatureOID, c.PressureOID} {
		if err := validation.ValidateOID(oid); err != nil {
			return fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err)
		}
	}
	if c.SecurityName == "" && c.Community == "" {
		return fmt.Errorf("%w: snmp v2c requires a community string", errors.ErrInvalidConfig)
	}
	return nil
}

// =============================================================================
// SNMP Source
// =============================================================================

// SNMPSource reads a measurement with one SNMP GET of three OIDs.
type SNMPSource struct {
	cfg SNMPConfig

	// connect is replaced in tests.
	connect func(ctx context.Context) (getter, error)
}

type getter interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	Close() error
}

type snmpConn struct{ *gosnmp.GoSNMP }

func (c snmpConn) Close() error { return c.Conn.Close() }

// NewSNMPSource validates cfg and returns a source.
func NewSNMPSource(cfg SNMPConfig) (*SNMPSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &SNMPSource{cfg: cfg}
	s.connect = s.dial
	return s, nil
}

// Read implements Source.
func (s *SNMPSource) Read(ctx context.Context) (Measurement, error) {
	client, err := s.connect(ctx)
	if err != nil {
		return Measurement{}, fmt.Errorf("%w: connect: %v", errors.ErrSourceUnavailable, err)
	}
	defer client.Close()

	// Check context before GET
	if err := ctx.Err(); err != nil {
		return Measurement{}, err
	}

	oids := []string{s.cfg.HumidityOID, s.cfg.TemperatureOID, s.cfg.PressureOID}
	pdu, err := client.Get(oids)
	if err != nil {
		if isTimeoutError(err) {
			return Measurement{}, fmt.Errorf("%w: get: %v", errors.ErrTimeout, err)
		}
		return Measurement{}, fmt.Errorf("%w: get: %v", errors.ErrSourceUnavailable, err)
	}

	values := make(map[string]float64, len(pdu.Variables))
	for _, v := range pdu.Variables {
		f, err := variableValue(v)
		if err != nil {
			return Measurement{}, fmt.Errorf("%w: %s: %v", errors.ErrSourceUnavailable, v.Name, err)
		}
		values[validation.NormalizeOID(v.Name)] = f
	}

	var m Measurement
	for _, f := range []struct {
		oid   string
		scale float64
		dst   *float32
	}{
		{s.cfg.HumidityOID, s.cfg.HumidityScale, &m.Humidity},
		{s.cfg.TemperatureOID, s.cfg.TemperatureScale, &m.Temperature},
		{s.cfg.PressureOID, s.cfg.PressureScale, &m.Pressure},
	} {
		v, ok := values[validation.NormalizeOID(f.oid)]
		if !ok {
			return Measurement{}, fmt.Errorf("%w: %s missing from response", errors.ErrSourceUnavailable, f.oid)
		}
		if f.scale != 0 {
			v *= f.scale
		}
		*f.dst = float32(v)
	}
	return m, nil
}

// variableValue extracts a numeric value from a PDU variable.
func variableValue(v gosnmp.SnmpPDU) (float64, error) {
	switch v.Type {
	case gosnmp.Integer:
		return float64(v.Value.(int)), nil

	case gosnmp.Gauge32, gosnmp.Counter32, gosnmp.Counter64, gosnmp.Uinteger32, gosnmp.TimeTicks:
		return float64(gosnmp.ToBigInt(v.Value).Int64()), nil

	case gosnmp.OpaqueFloat:
		return float64(v.Value.(float32)), nil

	case gosnmp.OpaqueDouble:
		return v.Value.(float64), nil

	case gosnmp.OctetString:
		return strconv.ParseFloat(strings.TrimSpace(string(v.Value.([]byte))), 64)

	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance:
		return 0, fmt.Errorf("OID not found")

	default:
		return 0, fmt.Errorf("unsupported type: %v", v.Type)
	}
}

// =============================================================================
// SNMP Client Creation
// =============================================================================

func (s *SNMPSource) dial(ctx context.Context) (getter, error) {
	client := s.createClient(ctx)
	if err := client.Connect(); err != nil {
		return nil, err
	}
	return snmpConn{client}, nil
}

func (s *SNMPSource) createClient(ctx context.Context) *gosnmp.GoSNMP {
	cfg := &s.cfg

	port := cfg.Port
	if port == 0 {
		port = config.DefaultSNMPPort
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = config.DefaultSourceTimeout
	}

	retries := cfg.Retries
	if retries == 0 {
		retries = config.DefaultSNMPRetries
	}

	client := &gosnmp.GoSNMP{
		Context: ctx,
		Target:  cfg.Host,
		Port:    port,
		Timeout: timeout,
		Retries: retries,
	}

	// Configure version based on presence of security name
	if cfg.SecurityName != "" {
		client.Version = gosnmp.Version3
		client.SecurityModel = gosnmp.UserSecurityModel
		client.MsgFlags = msgFlags(cfg.SecurityLevel)
		client.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 cfg.SecurityName,
			AuthenticationProtocol:   authProtocol(cfg.AuthProtocol),
			AuthenticationPassphrase: cfg.AuthPassword,
			PrivacyProtocol:          privProtocol(cfg.PrivProtocol),
			PrivacyPassphrase:        cfg.PrivPassword,
		}
		client.ContextName = cfg.ContextName
	} else {
		client.Version = gosnmp.Version2c
		client.Community = cfg.Community
	}

	return client
}

// =============================================================================
// SNMPv3 Protocol Helpers
// =============================================================================

func msgFlags(level string) gosnmp.SnmpV3MsgFlags {
	switch level {
	case "authNoPriv":
		return gosnmp.AuthNoPriv
	case "authPriv":
		return gosnmp.AuthPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func authProtocol(protocol string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToUpper(protocol) {
	case "MD5":
		return gosnmp.MD5
	case "SHA":
		return gosnmp.SHA
	case "SHA224":
		return gosnmp.SHA224
	case "SHA256":
		return gosnmp.SHA256
	case "SHA384":
		return gosnmp.SHA384
	case "SHA512":
		return gosnmp.SHA512
	default:
		return gosnmp.NoAuth
	}
}

func privProtocol(protocol string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToUpper(protocol) {
	case "DES":
		return gosnmp.DES
	case "AES":
		return gosnmp.AES
	case "AES192":
		return gosnmp.AES192
	case "AES256":
		return gosnmp.AES256
	default:
		return gosnmp.NoPriv
	}
}

func isTimeoutError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "request timeout") ||
		errors.Is(err, context.DeadlineExceeded)
}
