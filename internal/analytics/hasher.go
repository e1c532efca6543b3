package analytics

import (
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/freewebtopdf/redirector/internal/domain"
)

// IPMode selects how remote addresses are stored
type IPMode int

const (
	// IPRaw stores the address as received
	IPRaw IPMode = iota
	// IPHashed stores a keyed BLAKE3 digest
	IPHashed
	// IPDropped stores nothing
	IPDropped
)

// IPProcessor prepares remote addresses for storage
type IPProcessor struct {
	mode IPMode
	key  []byte
}

// NewIPProcessor returns a processor for the configured policy. Hashing
// without a salt is a configuration error; the returned processor then
// drops addresses so the rest of analytics keeps working.
func NewIPProcessor(hash bool, salt string) (*IPProcessor, error) {
	if !hash {
		return &IPProcessor{mode: IPRaw}, nil
	}
	if salt == "" {
		return &IPProcessor{mode: IPDropped}, domain.NewAppError(
			domain.ErrConfig,
			"ANALYTICS_IP_SALT is required when ANALYTICS_HASH_IPS is enabled; IP capture disabled",
			500,
			map[string]any{"feature": "ip_hashing"},
		)
	}

	key := blake3.Sum256([]byte(salt))
	return &IPProcessor{mode: IPHashed, key: key[:]}, nil
}

// Mode reports the active policy
func (p *IPProcessor) Mode() IPMode {
	if p == nil {
		return IPDropped
	}
	return p.mode
}

// Process returns the value to store for ip
func (p *IPProcessor) Process(ip string) string {
	if ip == "" {
		return ""
	}
	switch p.Mode() {
	case IPRaw:
		return ip
	case IPHashed:
		h, err := blake3.NewKeyed(p.key)
		if err != nil {
			return ""
		}
		_, _ = h.Write([]byte(ip))
		return hex.EncodeToString(h.Sum(nil)[:16])
	default:
		return ""
	}
}
