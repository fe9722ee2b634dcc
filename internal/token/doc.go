// Package token obtains the anonymous bearer token the projects API demands.
//
// The token lives inside the Next.js bootstrap payload of the public project
// finder page: <script id="__NEXT_DATA__"> carries a JSON document whose
// props.pageProps.initialState.anonymousUser.token field is a JWT. Only the
// payload is decoded (no signature check) to read its exp claim.
//
// Provider.Token returns the token stored in the snapshot when it is still
// fresh, and otherwise scrapes a new one under the retry policy, optionally
// behind a one-minute cache, then persists it.
package token
