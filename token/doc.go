// Package token implements the signed, self-contained credential format used
// by tokengate: issuance and verification of access and refresh tokens with
// embedded subject, kind, unique id, and expiry.
//
// The codec is pure and stateless. It verifies signatures and expiry only;
// revocation is the caller's concern. Decoding fails closed: any structural,
// signature, or expiry failure returns a typed error and never a
// partially-trusted claims value.
package token
