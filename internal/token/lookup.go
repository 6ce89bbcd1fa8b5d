package token

// Lookup is the outcome of resolving a token value: either Found carrying
// a Token, or Empty. Absence is an ordinary result, never an error.
type Lookup struct {
	token Token
	found bool
}

// Empty is the lookup result for a value with no matching token.
var Empty = Lookup{}

func Found(t Token) Lookup {
	return Lookup{token: t, found: true}
}

// Token returns the resolved token and whether one was found.
func (l Lookup) Token() (Token, bool) {
	return l.token, l.found
}

func (l Lookup) IsEmpty() bool {
	return !l.found
}

// Valid reports whether the lookup holds a currently valid token.
// Empty is always invalid.
func (l Lookup) Valid(c Clock) bool {
	if !l.found {
		return false
	}
	return c.Valid(l.token)
}
