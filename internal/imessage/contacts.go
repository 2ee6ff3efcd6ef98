package imessage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// ContactResolver maps message handles (phone numbers, emails) to contact
// names. Platform-specific; the server treats it as a capability provider
// and degrades gracefully when resolution is unavailable.
type ContactResolver interface {
	// Resolve returns the contact name for a handle, or "" when unknown.
	Resolve(handle string) string
	// HandlesForName returns handles whose contact name contains the given
	// fragment, case-insensitively.
	HandlesForName(name string) []string
	// Available reports whether the resolver has contact data at all.
	Available() bool
}

// NopResolver resolves nothing. Used when no contact store is configured.
type NopResolver struct{}

func (NopResolver) Resolve(string) string          { return "" }
func (NopResolver) HandlesForName(string) []string { return nil }
func (NopResolver) Available() bool                { return false }

// StaticResolver resolves from a fixed handle → name map.
type StaticResolver map[string]string

func (r StaticResolver) Resolve(handle string) string {
	if name, ok := r[handle]; ok {
		return name
	}
	if e164 := NormalizeE164(handle); e164 != "" {
		if name, ok := r[e164]; ok {
			return name
		}
	}
	if strings.Contains(handle, "@") {
		if name, ok := r[strings.ToLower(handle)]; ok {
			return name
		}
	}
	return ""
}

func (r StaticResolver) HandlesForName(name string) []string {
	needle := strings.ToLower(name)
	var out []string
	for handle, contactName := range r {
		if strings.Contains(strings.ToLower(contactName), needle) {
			out = append(out, handle)
		}
	}
	return out
}

func (r StaticResolver) Available() bool { return len(r) > 0 }

// AddressBookResolver resolves handles against the macOS Contacts sqlite
// store. The lookup table is built lazily on first use and cached for the
// process lifetime; contact churn is rare enough that staleness is
// acceptable.
type AddressBookResolver struct {
	path string

	once   sync.Once
	lookup StaticResolver
	err    error
}

// NewAddressBookResolver points a resolver at an AddressBook sqlite file.
func NewAddressBookResolver(path string) *AddressBookResolver {
	return &AddressBookResolver{path: path}
}

func (r *AddressBookResolver) load() {
	r.once.Do(func() {
		r.lookup, r.err = loadAddressBook(r.path)
	})
}

// LoadError surfaces the deferred load failure, if any.
func (r *AddressBookResolver) LoadError() error {
	r.load()
	return r.err
}

func (r *AddressBookResolver) Resolve(handle string) string {
	r.load()
	return r.lookup.Resolve(handle)
}

func (r *AddressBookResolver) HandlesForName(name string) []string {
	r.load()
	return r.lookup.HandlesForName(name)
}

func (r *AddressBookResolver) Available() bool {
	r.load()
	return r.lookup.Available()
}

// loadAddressBook builds a handle → name table from the Contacts schema
// (ZABCDRECORD joined to ZABCDPHONENUMBER / ZABCDEMAILADDRESS).
func loadAddressBook(path string) (StaticResolver, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", url.PathEscape(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open address book %s: %w", path, err)
	}
	defer db.Close()

	lookup := StaticResolver{}
	ctx := context.Background()

	rows, err := db.QueryContext(ctx, `
		SELECT p.ZFULLNUMBER, r.ZFIRSTNAME, r.ZLASTNAME
		FROM ZABCDPHONENUMBER p
		JOIN ZABCDRECORD r ON p.ZOWNER = r.Z_PK`)
	if err != nil {
		return nil, fmt.Errorf("query address book phones: %w", err)
	}
	for rows.Next() {
		var number, first, last sql.NullString
		if err := rows.Scan(&number, &first, &last); err != nil {
			rows.Close()
			return nil, err
		}
		name := joinName(first.String, last.String)
		if name == "" {
			continue
		}
		if e164 := NormalizeE164(number.String); e164 != "" {
			lookup[e164] = name
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.QueryContext(ctx, `
		SELECT e.ZADDRESS, r.ZFIRSTNAME, r.ZLASTNAME
		FROM ZABCDEMAILADDRESS e
		JOIN ZABCDRECORD r ON e.ZOWNER = r.Z_PK`)
	if err != nil {
		return nil, fmt.Errorf("query address book emails: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var addr, first, last sql.NullString
		if err := rows.Scan(&addr, &first, &last); err != nil {
			return nil, err
		}
		name := joinName(first.String, last.String)
		if name == "" || addr.String == "" {
			continue
		}
		lookup[strings.ToLower(addr.String)] = name
	}
	return lookup, rows.Err()
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
