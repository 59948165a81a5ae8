package federation

import (
	"strings"

	dErrors "stellarbridge/pkg/domain-errors"
)

const maxDomainLength = 253

// Address is a federated ledger address, name*domain. Extra optionally names
// a sub-account inside the tenant's books and is never sent to federation
// servers.
type Address struct {
	LocalName string
	Domain    string
	Extra     string
}

// Parse validates raw as name*domain or name*domain:extra.
func Parse(raw string) (Address, error) {
	raw = strings.TrimSpace(raw)
	sep := strings.LastIndex(raw, "*")
	if sep < 0 {
		return Address{}, dErrors.New(dErrors.CodeInvalidAddress, "address must have the form name*domain")
	}
	local, rest := raw[:sep], raw[sep+1:]
	if local == "" || strings.ContainsAny(local, " \t\r\n") {
		return Address{}, dErrors.New(dErrors.CodeInvalidAddress, "address local name is invalid")
	}

	domain, extra, hasExtra := strings.Cut(rest, ":")
	if hasExtra && extra == "" {
		return Address{}, dErrors.New(dErrors.CodeInvalidAddress, "address extra part is empty")
	}
	if !validDomain(domain) {
		return Address{}, dErrors.New(dErrors.CodeInvalidAddress, "address domain is not a valid host name")
	}
	return Address{LocalName: local, Domain: strings.ToLower(domain), Extra: extra}, nil
}

// String formats the address; Extra is appended only when set.
func (a Address) String() string {
	s := a.LocalName + "*" + a.Domain
	if a.Extra != "" {
		s += ":" + a.Extra
	}
	return s
}

// FederationName is the name*domain form federation servers are queried with.
func (a Address) FederationName() string {
	return a.LocalName + "*" + a.Domain
}

func validDomain(domain string) bool {
	if domain == "" || len(domain) > maxDomainLength {
		return false
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			ok := r == '-' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
			if !ok {
				return false
			}
		}
	}
	return true
}
