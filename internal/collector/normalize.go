// Package collector implements the SNMP collection pipeline: the
// normalizer that reassembles flat OID/value maps into structured metric
// records, and the scheduler that fans polling out across devices.
package collector

import (
	"sort"
	"strconv"
	"strings"

	"github.com/mzanin/switchmon/internal/snmp"
)

// IF-MIB interface table columns and HOST-RESOURCES-MIB processor load.
const (
	OIDIfDescr       = "1.3.6.1.2.1.2.2.1.2"
	OIDIfAdminStatus = "1.3.6.1.2.1.2.2.1.7"
	OIDIfOperStatus  = "1.3.6.1.2.1.2.2.1.8"
	OIDIfInOctets    = "1.3.6.1.2.1.2.2.1.10"
	OIDIfInDiscards  = "1.3.6.1.2.1.2.2.1.13"
	OIDIfInErrors    = "1.3.6.1.2.1.2.2.1.14"
	OIDIfOutOctets   = "1.3.6.1.2.1.2.2.1.16"
	OIDIfOutDiscards = "1.3.6.1.2.1.2.2.1.19"
	OIDIfOutErrors   = "1.3.6.1.2.1.2.2.1.20"

	OIDHrProcessorLoad = "1.3.6.1.2.1.25.3.3.1.2"
)

// ifStatusUp is the IF-MIB truth value for ifAdminStatus/ifOperStatus.
const ifStatusUp = 1

// InterfaceTableOIDs is the full set of columns one interface batch walks.
var InterfaceTableOIDs = []string{
	OIDIfDescr,
	OIDIfAdminStatus,
	OIDIfOperStatus,
	OIDIfInOctets,
	OIDIfOutOctets,
	OIDIfInErrors,
	OIDIfOutErrors,
	OIDIfInDiscards,
	OIDIfOutDiscards,
}

// InterfaceRecord is one normalized interface row, not yet persisted.
type InterfaceRecord struct {
	IfIndex int
	Name    string

	AdminUp bool
	OperUp  bool

	BytesIn     int64
	BytesOut    int64
	ErrorsIn    int64
	ErrorsOut   int64
	DiscardsIn  int64
	DiscardsOut int64
}

// CPUSample is one processor instance's load reading.
type CPUSample struct {
	Index        int
	UsagePercent int
}

// ifColumnSetters maps each known metric column to the field it fills.
// Built once; the normalizer never infers field names from OID text.
var ifColumnSetters = map[string]func(*InterfaceRecord, int64){
	OIDIfAdminStatus: func(r *InterfaceRecord, v int64) { r.AdminUp = v == ifStatusUp },
	OIDIfOperStatus:  func(r *InterfaceRecord, v int64) { r.OperUp = v == ifStatusUp },
	OIDIfInOctets:    func(r *InterfaceRecord, v int64) { r.BytesIn = v },
	OIDIfOutOctets:   func(r *InterfaceRecord, v int64) { r.BytesOut = v },
	OIDIfInErrors:    func(r *InterfaceRecord, v int64) { r.ErrorsIn = v },
	OIDIfOutErrors:   func(r *InterfaceRecord, v int64) { r.ErrorsOut = v },
	OIDIfInDiscards:  func(r *InterfaceRecord, v int64) { r.DiscardsIn = v },
	OIDIfOutDiscards: func(r *InterfaceRecord, v int64) { r.DiscardsOut = v },
}

// splitInstance splits an instance OID into its column base and the final
// dotted component, e.g. "1.3.6.1.2.1.2.2.1.2.3" → ("1.3.6.1.2.1.2.2.1.2", 3).
func splitInstance(oid string) (base string, index int, ok bool) {
	i := strings.LastIndex(oid, ".")
	if i < 0 {
		return "", 0, false
	}
	index, err := strconv.Atoi(oid[i+1:])
	if err != nil {
		return "", 0, false
	}
	return oid[:i], index, true
}

// NormalizeInterfaces rebuilds interface records from a flat result map.
//
// Indices are discovered solely from ifDescr rows: a record exists if and
// only if its index appeared there. Metric values for undiscovered indices
// are dropped, as are errored results, empty values, and values that fail
// integer parsing (each skip affects that one field only).
//
// The function is pure: the same input always yields the same records in
// the same order.
func NormalizeInterfaces(results map[string]snmp.Result) []InterfaceRecord {
	byIndex := make(map[int]*InterfaceRecord)

	for oid, res := range results {
		if res.Err != nil || res.Value == "" {
			continue
		}
		base, index, ok := splitInstance(oid)
		if !ok || base != OIDIfDescr {
			continue
		}
		byIndex[index] = &InterfaceRecord{IfIndex: index, Name: res.Value}
	}

	for oid, res := range results {
		if res.Err != nil || res.Value == "" {
			continue
		}
		base, index, ok := splitInstance(oid)
		if !ok || base == OIDIfDescr {
			continue
		}
		set, known := ifColumnSetters[base]
		if !known {
			continue
		}
		rec, discovered := byIndex[index]
		if !discovered {
			continue
		}
		v, err := strconv.ParseInt(res.Value, 10, 64)
		if err != nil {
			continue
		}
		set(rec, v)
	}

	records := make([]InterfaceRecord, 0, len(byIndex))
	for _, rec := range byIndex {
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].IfIndex < records[j].IfIndex })

	return records
}

// NormalizeCPU turns hrProcessorLoad instances into per-core samples,
// using the final dotted component of each OID as the core index.
func NormalizeCPU(results map[string]snmp.Result) []CPUSample {
	samples := make([]CPUSample, 0, len(results))

	for oid, res := range results {
		if res.Err != nil || res.Value == "" {
			continue
		}
		base, index, ok := splitInstance(oid)
		if !ok || base != OIDHrProcessorLoad {
			continue
		}
		usage, err := strconv.Atoi(res.Value)
		if err != nil {
			continue
		}
		samples = append(samples, CPUSample{Index: index, UsagePercent: usage})
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Index < samples[j].Index })

	return samples
}

// AverageCPU collapses per-core samples into a single device-level percentage.
func AverageCPU(samples []CPUSample) int {
	if len(samples) == 0 {
		return 0
	}
	total := 0
	for _, s := range samples {
		total += s.UsagePercent
	}
	return total / len(samples)
}

// ParseUptime converts a sysUpTime reading (TimeTicks, hundredths of a
// second) into whole seconds. Malformed input yields zero.
func ParseUptime(timeticks string) int64 {
	ticks, err := strconv.ParseInt(timeticks, 10, 64)
	if err != nil || ticks < 0 {
		return 0
	}
	return ticks / 100
}
