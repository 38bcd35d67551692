// Package gateway decides whether a browser request may power off the host
// and, once it may, runs the power-off command exactly once off the request
// path.
package gateway

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"net/netip"
	"strings"
)

// Reason names why a request was denied. The zero value means allowed.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonMethodNotAllowed     Reason = "method_not_allowed"
	ReasonMissingSessionCookie Reason = "missing_session_cookie"
	ReasonBadToken             Reason = "bad_token"
	ReasonNetworkBlock         Reason = "network_block"
)

// AcceptedMethod is the only verb that can reach the executor.
const AcceptedMethod = http.MethodPost

// Request is everything the chain looks at. SessionToken reads the token of
// the session the request's cookie points to; it is nil or reports false when
// there is no such session.
type Request struct {
	Method         string
	Remote         string
	UserAgent      string
	SessionID      string
	CookiePresent  bool
	SubmittedToken string
	SessionToken   func() (string, bool)
}

// Decision is the outcome of Authorize.
type Decision struct {
	Reason Reason
	// Remote is the observed address, set only for network_block.
	Remote string
}

func (d Decision) Allowed() bool { return d.Reason == ReasonNone }

// Status maps the decision to an HTTP status code.
func (d Decision) Status() int {
	switch d.Reason {
	case ReasonNone:
		return http.StatusOK
	case ReasonMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusForbidden
	}
}

// Message is the client-facing text.
func (d Decision) Message() string {
	switch d.Reason {
	case ReasonNone:
		return "Shutting down now"
	case ReasonMethodNotAllowed:
		return "Method not allowed"
	case ReasonMissingSessionCookie:
		return "Missing session cookie"
	case ReasonBadToken:
		return "Bad token"
	case ReasonNetworkBlock:
		return "Not allowed from this network"
	default:
		return "Forbidden"
	}
}

// Check inspects a request and returns ReasonNone to pass it on. Checks must
// not mutate anything a later check reads.
type Check func(Request) Reason

// Chain runs checks in order and stops at the first denial.
type Chain []Check

// DefaultChain is method, session cookie, token, network origin. The order
// matters: each stage has its own audit line and status code.
var DefaultChain = Chain{CheckMethod, CheckSessionCookie, CheckToken, CheckNetwork}

func (c Chain) Authorize(req Request) Decision {
	for _, check := range c {
		if reason := check(req); reason != ReasonNone {
			d := Decision{Reason: reason}
			if reason == ReasonNetworkBlock {
				d.Remote = req.Remote
			}
			return d
		}
	}
	return Decision{}
}

// Authorize runs DefaultChain.
func Authorize(req Request) Decision { return DefaultChain.Authorize(req) }

func CheckMethod(req Request) Reason {
	if req.Method != AcceptedMethod {
		return ReasonMethodNotAllowed
	}
	return ReasonNone
}

func CheckSessionCookie(req Request) Reason {
	if !req.CookiePresent {
		return ReasonMissingSessionCookie
	}
	return ReasonNone
}

func CheckToken(req Request) Reason {
	if req.SessionToken == nil {
		return ReasonBadToken
	}
	stored, ok := req.SessionToken()
	if !ok || stored == "" {
		return ReasonBadToken
	}
	if !TokensEqual(stored, req.SubmittedToken) {
		return ReasonBadToken
	}
	return ReasonNone
}

// TokensEqual compares in constant time. Both sides are hashed first so the
// comparison length is fixed and the running time says nothing about where,
// or whether by length, the inputs differ.
func TokensEqual(stored, submitted string) bool {
	a := sha256.Sum256([]byte(stored))
	b := sha256.Sum256([]byte(submitted))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// allowedNetworks are loopback and RFC1918 ranges. Loopback is the two exact
// host addresses, not all of 127/8.
var allowedNetworks = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.1/32"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
}

func CheckNetwork(req Request) Reason {
	if AllowedRemote(req.Remote) {
		return ReasonNone
	}
	return ReasonNetworkBlock
}

// AllowedRemote reports whether a bare IP string is inside the allowlist.
// Anything that does not parse is refused. IPv4-mapped IPv6 addresses are
// judged as IPv4.
func AllowedRemote(remote string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(remote))
	if err != nil || addr.Zone() != "" {
		return false
	}
	addr = addr.Unmap()
	for _, p := range allowedNetworks {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
