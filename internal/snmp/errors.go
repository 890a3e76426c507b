package snmp

import (
	"fmt"

	"github.com/gosnmp/gosnmp"
)

// TransportError indicates a network-level failure (dial, timeout) while
// talking to a device. Retries happen at the transport level only; callers
// must not retry on top of it.
type TransportError struct {
	Host string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("snmp transport error for %s: %v", e.Host, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError indicates the device answered with an SNMP-level error
// status. It carries the offending OID and is never retried.
type ProtocolError struct {
	Host   string
	OID    string
	Status gosnmp.SNMPError
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("snmp error %v from %s at %s", e.Status, e.Host, e.OID)
}
