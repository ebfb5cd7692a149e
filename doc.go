// Package sessiongate implements the authentication session lifecycle shared
// by a mobile client and a backend gateway: a client-side session state
// machine backed by a secure token slot, and a server-side gateway that
// validates bearer tokens against an identity provider before handing
// requests a Principal.
//
// The root package holds the domain contracts and the error taxonomy. The
// transport pieces live in middleware/tokenguard and gateway, the provider
// implementations in provider/localidp and provider/remoteidp, and the
// device-side kit in client.
package sessiongate
