// Package auth answers whether the user is authenticated and with what token.
//
// Provider trusts a credential validated within the last five minutes and
// otherwise asks the backend. A 401 or 403 clears the credential; any other
// failure keeps it and reports a network error.
package auth
