package targeting

import (
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/maxminddb-golang"
)

// GeoResolver turns a viewer IP into a location string usable for
// location targeting when the caller supplies no explicit location.
type GeoResolver interface {
	Resolve(ip string) (string, error)
	Close() error
}

// MaxMindResolver resolves IPs against a MaxMind GeoLite2/GeoIP2 City
// database.
type MaxMindResolver struct {
	reader *maxminddb.Reader
}

// NewMaxMindResolver opens the mmdb file at dbPath.
func NewMaxMindResolver(dbPath string) (*MaxMindResolver, error) {
	reader, err := maxminddb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	return &MaxMindResolver{reader: reader}, nil
}

type cityRecord struct {
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Subdivisions []struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"subdivisions"`
	Country struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
}

// Resolve returns a "City, Region, Country" string for the IP, with
// empty components omitted.
func (r *MaxMindResolver) Resolve(ip string) (string, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", fmt.Errorf("invalid IP address: %s", ip)
	}

	var rec cityRecord
	if err := r.reader.Lookup(parsed, &rec); err != nil {
		return "", err
	}

	var parts []string
	if v := rec.City.Names["en"]; v != "" {
		parts = append(parts, v)
	}
	if len(rec.Subdivisions) > 0 {
		if v := rec.Subdivisions[0].Names["en"]; v != "" {
			parts = append(parts, v)
		}
	}
	if v := rec.Country.Names["en"]; v != "" {
		parts = append(parts, v)
	}
	return strings.Join(parts, ", "), nil
}

// Close closes the underlying database.
func (r *MaxMindResolver) Close() error {
	if r.reader != nil {
		return r.reader.Close()
	}
	return nil
}
