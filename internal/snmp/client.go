// Package snmp wraps gosnmp with the per-OID batch semantics the collector
// needs: every fetch in a batch succeeds or fails on its own, and a batch
// never raises for an individual OID failure.
package snmp

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Well-known OIDs for basic device information.
const (
	OIDSysDescr    = "1.3.6.1.2.1.1.1.0"
	OIDSysUpTime   = "1.3.6.1.2.1.1.3.0"
	OIDSysContact  = "1.3.6.1.2.1.1.4.0"
	OIDSysName     = "1.3.6.1.2.1.1.5.0"
	OIDSysLocation = "1.3.6.1.2.1.1.6.0"
)

const (
	defaultPort    = 161
	defaultWorkers = 10
)

// Config carries per-client SNMP settings. Timeout and Retries apply to
// each individual request, not to a batch.
type Config struct {
	Community string
	Timeout   time.Duration
	Retries   int
	// Workers bounds concurrent in-flight requests per batch so a batch
	// cannot overwhelm the target device.
	Workers int
}

// Target identifies one device to query. Empty Community or zero Port fall
// back to the client defaults.
type Target struct {
	Host      string
	Port      uint16
	Community string
}

// Result is the outcome of one OID fetch inside a batch: either Value or
// Err is set, never both.
type Result struct {
	OID   string
	Value string
	Err   error
}

// DeviceInfo is the fixed well-known OID set describing a device.
// Fields whose fetch failed are left empty.
type DeviceInfo struct {
	SysDescr    string
	SysName     string
	SysLocation string
	SysContact  string
	SysUpTime   string
}

// Client issues SNMP v2c requests. Each request opens its own session:
// gosnmp connections are not safe for concurrent use, and sessions to
// embedded switch agents are cheap.
type Client struct {
	cfg    Config
	logger zerolog.Logger
}

// NewClient builds a Client, filling unset config fields with defaults.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Community == "" {
		cfg.Community = "public"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	return &Client{
		cfg:    cfg,
		logger: logger.With().Str("component", "snmp").Logger(),
	}
}

// session builds a connected gosnmp session for the target.
func (c *Client) session(target Target) (*gosnmp.GoSNMP, error) {
	community := target.Community
	if community == "" {
		community = c.cfg.Community
	}
	port := target.Port
	if port == 0 {
		port = defaultPort
	}

	g := &gosnmp.GoSNMP{
		Target:    target.Host,
		Port:      port,
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   c.cfg.Timeout,
		Retries:   c.cfg.Retries,
	}
	if err := g.Connect(); err != nil {
		return nil, &TransportError{Host: target.Host, Err: err}
	}
	return g, nil
}

// Get fetches a single OID value.
func (c *Client) Get(ctx context.Context, target Target, oid string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &TransportError{Host: target.Host, Err: err}
	}

	g, err := c.session(target)
	if err != nil {
		return "", err
	}
	defer g.Conn.Close()

	pkt, err := g.Get([]string{oid})
	if err != nil {
		return "", &TransportError{Host: target.Host, Err: err}
	}
	if pkt.Error != gosnmp.NoError {
		bad := oid
		if i := int(pkt.ErrorIndex) - 1; i >= 0 && i < len(pkt.Variables) {
			bad = strings.TrimPrefix(pkt.Variables[i].Name, ".")
		}
		return "", &ProtocolError{Host: target.Host, OID: bad, Status: pkt.Error}
	}
	if len(pkt.Variables) == 0 {
		return "", &ProtocolError{Host: target.Host, OID: oid, Status: gosnmp.NoSuchName}
	}

	pdu := pkt.Variables[0]
	switch pdu.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
		return "", &ProtocolError{Host: target.Host, OID: oid, Status: gosnmp.NoSuchName}
	}
	return pduString(pdu), nil
}

// GetMultiple fetches many OIDs concurrently, bounded by the client's
// worker limit. The returned map has one Result per requested OID; a
// failed OID yields a Result with Err set and never affects the others.
// The call returns only after every fetch has completed.
func (c *Client) GetMultiple(ctx context.Context, target Target, oids []string) map[string]Result {
	var (
		mu  sync.Mutex
		out = make(map[string]Result, len(oids))
	)

	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)

	for _, oid := range oids {
		oid := oid
		g.Go(func() error {
			value, err := c.Get(ctx, target, oid)

			mu.Lock()
			out[oid] = Result{OID: oid, Value: value, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // goroutines report through the result map, never an error

	return out
}

// WalkMultiple walks each base OID concurrently and flattens the results
// into a single instance-OID keyed map, e.g. "1.3.6.1.2.1.2.2.1.2.3" for
// ifDescr of ifIndex 3. This is how interface tables are fetched: GETs
// against bare column OIDs return nothing on a conforming agent.
func (c *Client) WalkMultiple(ctx context.Context, target Target, baseOIDs []string) map[string]Result {
	var (
		mu  sync.Mutex
		out = make(map[string]Result)
	)

	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)

	for _, base := range baseOIDs {
		base := base
		g.Go(func() error {
			rows, err := c.walk(ctx, target, base)

			mu.Lock()
			if err != nil {
				out[base] = Result{OID: base, Err: err}
			} else {
				for oid, value := range rows {
					out[oid] = Result{OID: oid, Value: value}
				}
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// walk runs a BulkWalk under one base OID and returns instance OID → value.
func (c *Client) walk(ctx context.Context, target Target, baseOID string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Host: target.Host, Err: err}
	}

	g, err := c.session(target)
	if err != nil {
		return nil, err
	}
	defer g.Conn.Close()

	rows := make(map[string]string)
	err = g.BulkWalk(baseOID, func(pdu gosnmp.SnmpPDU) error {
		rows[strings.TrimPrefix(pdu.Name, ".")] = pduString(pdu)
		return nil
	})
	if err != nil {
		return nil, &TransportError{Host: target.Host, Err: err}
	}
	return rows, nil
}

// GetDeviceInfo fetches the well-known system group. Individual OID
// failures leave the matching field empty; the call errors only when
// every OID failed, which means the device is unreachable.
func (c *Client) GetDeviceInfo(ctx context.Context, target Target) (DeviceInfo, error) {
	oids := []string{OIDSysDescr, OIDSysName, OIDSysLocation, OIDSysContact, OIDSysUpTime}
	results := c.GetMultiple(ctx, target, oids)

	info := DeviceInfo{}
	failures := 0

	for oid, res := range results {
		if res.Err != nil {
			c.logger.Debug().Err(res.Err).Str("host", target.Host).Str("oid", oid).
				Msg("device info OID failed")
			failures++

			continue
		}
		switch oid {
		case OIDSysDescr:
			info.SysDescr = res.Value
		case OIDSysName:
			info.SysName = res.Value
		case OIDSysLocation:
			info.SysLocation = res.Value
		case OIDSysContact:
			info.SysContact = res.Value
		case OIDSysUpTime:
			info.SysUpTime = res.Value
		}
	}

	if failures == len(oids) {
		return info, results[OIDSysDescr].Err
	}
	return info, nil
}

// pduString renders a PDU value in its SNMP textual form: octet strings
// as-is, numeric types in decimal.
func pduString(pdu gosnmp.SnmpPDU) string {
	switch pdu.Type {
	case gosnmp.OctetString:
		if b, ok := pdu.Value.([]byte); ok {
			return string(b)
		}
		return ""
	case gosnmp.ObjectIdentifier, gosnmp.IPAddress:
		if s, ok := pdu.Value.(string); ok {
			return s
		}
		return ""
	case gosnmp.Null, gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
		return ""
	default:
		return gosnmp.ToBigInt(pdu.Value).String()
	}
}
