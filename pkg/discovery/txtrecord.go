package discovery

import (
	"fmt"
	"sort"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeHostTXT creates the TXT records of a host announcement.
func EncodeHostTXT(info *HostInfo) TXTRecordMap {
	txt := TXTRecordMap{TXTKeyHostID: info.HostID}
	if info.Name != "" {
		txt[TXTKeyName] = info.Name
	}
	if info.RootName != "" {
		txt[TXTKeyRoot] = info.RootName
	}
	if info.Network != "" {
		txt[TXTKeyNetwork] = info.Network
	}
	return txt
}

// DecodeHostTXT parses the TXT records of a host announcement. The port
// comes from the SRV record and is not set.
func DecodeHostTXT(txt TXTRecordMap) (*HostInfo, error) {
	id, ok := txt[TXTKeyHostID]
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyHostID)
	}
	return &HostInfo{
		HostID:   id,
		Name:     txt[TXTKeyName],
		RootName: txt[TXTKeyRoot],
		Network:  txt[TXTKeyNetwork],
	}, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings in
// key order.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if found {
			txt[k] = v
		} else if k != "" {
			// Key without value (boolean flag)
			txt[k] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("empty instance name")
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
