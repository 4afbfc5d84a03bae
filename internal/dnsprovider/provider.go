// Package dnsprovider is the typed interface boundary to concrete DNS
// providers.
package dnsprovider

import "context"

// RecordType is an A or AAAA record: one A record per IPv4 address, one
// AAAA record per IPv6 address.
type RecordType string

const (
	A    RecordType = "A"
	AAAA RecordType = "AAAA"
)

// Record is one DNS record at a hostname.
type Record struct {
	ID    string
	Name  string
	Type  RecordType
	Value string
	TTL   int
}

// Provider is the typed boundary to a concrete DNS backend.
type Provider interface {
	// CreateRecords creates one A record per IPv4 address and one AAAA
	// record per IPv6 address, all at hostname.
	CreateRecords(ctx context.Context, hostname string, ipv4, ipv6 []string) error

	// DeleteRecords removes every record at hostname.
	DeleteRecords(ctx context.Context, hostname string) error
}
