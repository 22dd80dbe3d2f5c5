// Package secret generates the short credential that nodeward hands to the
// supervised process during its startup handshake.
//
// Passwords are drawn from [a-zA-Z0-9] using crypto/rand. They are meant to
// be read off a screen and typed into the child's interface, so they are short
// (5 characters by default) and carry no punctuation.
//
// Usage:
//
//	pwd, err := secret.NewPassword(secret.DefaultLength)
//	if err != nil {
//	    return err
//	}
package secret
