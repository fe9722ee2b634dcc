package token

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrTokenFormat means the token page or the token itself no longer has the
// expected shape. It is never retried.
var ErrTokenFormat = errors.New("token: unexpected format")

// NextDataID is the id of the script element carrying the bootstrap JSON.
const NextDataID = "__NEXT_DATA__"

// DefaultPath is where the token sits inside the bootstrap JSON.
var DefaultPath = []string{"props", "pageProps", "initialState", "anonymousUser", "token"}

// ExtractFromHTML finds the bootstrap script in markup and returns the string
// stored at path inside it.
func ExtractFromHTML(markup []byte, path []string) (string, error) {
	doc, err := html.Parse(bytes.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("%w: parse html: %v", ErrTokenFormat, err)
	}

	script := findByID(doc, atom.Script, NextDataID)
	if script == nil {
		return "", fmt.Errorf("%w: could not find %s script", ErrTokenFormat, NextDataID)
	}

	var payload strings.Builder
	for c := script.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			payload.WriteString(c.Data)
		}
	}

	tok, err := jsonparser.GetString([]byte(payload.String()), path...)
	if err != nil {
		return "", fmt.Errorf("%w: %s not found in %s: %v", ErrTokenFormat, strings.Join(path, "."), NextDataID, err)
	}
	if tok == "" {
		return "", fmt.Errorf("%w: empty token at %s", ErrTokenFormat, strings.Join(path, "."))
	}
	return tok, nil
}

func findByID(n *html.Node, a atom.Atom, id string) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		for _, attr := range n.Attr {
			if attr.Key == "id" && attr.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, a, id); found != nil {
			return found
		}
	}
	return nil
}

// ExpirationFromJWT decodes the payload segment of an unsigned-checked JWT and
// returns its exp claim as an absolute time.
func ExpirationFromJWT(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: decode jwt: %v", ErrTokenFormat, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: exp claim: %v", ErrTokenFormat, err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("%w: jwt has no exp claim", ErrTokenFormat)
	}
	return exp.Time.UTC(), nil
}
