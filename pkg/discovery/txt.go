package discovery

import "strings"

// TXT record keys for an LDS-ME OPC UA server record, Part 12 6.2.1.
const (
	// TXTKeyPath is the path component of the server's discovery URL
	// (everything after "opc.tcp://host:port").
	TXTKeyPath = "path"

	// TXTKeyCaps is the comma-separated list of server capability
	// identifiers (e.g. "LDS,DA,HD,AC").
	TXTKeyCaps = "caps"
)

// ServerTXT holds the TXT record fields of an OPC UA LDS-ME service
// record.
type ServerTXT struct {
	// Path is the discovery URL path, empty when the record carries no
	// path key.
	Path string

	// Capabilities is the server's advertised capability identifiers.
	Capabilities []string
}

// Encode converts the TXT record to DNS-SD format strings.
func (s *ServerTXT) Encode() []string {
	var txt []string
	if s.Path != "" {
		txt = append(txt, TXTKeyPath+"="+s.Path)
	}
	if len(s.Capabilities) > 0 {
		txt = append(txt, TXTKeyCaps+"="+strings.Join(s.Capabilities, ","))
	}
	return txt
}

// ParseTXT parses raw DNS-SD TXT strings into a key-value map. Entries
// without an "=" are kept with an empty value, matching boolean-flag TXT
// conventions.
func ParseTXT(txt []string) map[string]string {
	result := make(map[string]string, len(txt))
	for _, entry := range txt {
		if idx := strings.IndexByte(entry, '='); idx >= 0 {
			result[entry[:idx]] = entry[idx+1:]
		} else {
			result[entry] = ""
		}
	}
	return result
}

// ParseServerTXT decodes a ServerTXT from raw DNS-SD TXT strings.
func ParseServerTXT(txt []string) ServerTXT {
	m := ParseTXT(txt)
	out := ServerTXT{Path: m[TXTKeyPath]}
	if caps, ok := m[TXTKeyCaps]; ok && caps != "" {
		out.Capabilities = strings.Split(caps, ",")
	}
	return out
}
