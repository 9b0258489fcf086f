// Package auth turns an opaque, client held token into a user identity that
// was just confirmed by the credential store, and gates protected work on
// that identity.
//
// Tokens are sealed with NaCl secretbox using a server held key. They carry
// the user id, a display theme and an expiration, nothing else. Being able
// to open a token proves very little: every request re-reads the id from
// the store, so deleting or disabling a user revokes all of their sessions
// without a server side session table.
//
// Passwords are hashed with bcrypt, the salt lives inside the digest.
// Login answers the same way for unknown users and wrong passwords, and
// both cases pay for one bcrypt comparison.
//
// Each request gets one Check. Any number of call sites, concurrent or
// not, can ask the Check for the current user and the store is consulted
// once. The Check also exposes Authorized, a boolean that flips to true
// once per successful resolution; that is the only thing protected content
// should be gated on. Guard and Run build on it and make sure protected
// accessors only execute after the identity was confirmed, anything else
// becomes a redirect to the login page.
//
// Everything fails closed: a token that cannot be opened, a user that is
// gone, or a store that errors out all read as "no user", and the client
// is told to drop its token so it does not keep retrying a poisoned
// session.
package auth
