package generator

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

const (
	// MinLength is the shortest password the generator produces
	MinLength = 8

	// MaxLength is the longest password the generator produces
	MaxLength = 32

	// DefaultLength is the length used when none is configured
	DefaultLength = 16

	lowercaseChars = "abcdefghijklmnopqrstuvwxyz"
	uppercaseChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	numberChars    = "0123456789"
	symbolChars    = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

// ErrInvalidPolicy indicates the class selection cannot produce a password
var ErrInvalidPolicy = errors.New("invalid generator policy")

// Class is a set of character classes
type Class uint8

const (
	Lowercase Class = 1 << iota
	Uppercase
	Numbers
	Symbols

	AllClasses = Lowercase | Uppercase | Numbers | Symbols
)

// Has reports whether every class in other is enabled
func (c Class) Has(other Class) bool {
	return c&other == other
}

// String lists the enabled classes
func (c Class) String() string {
	var names []string
	if c.Has(Lowercase) {
		names = append(names, "lowercase")
	}
	if c.Has(Uppercase) {
		names = append(names, "uppercase")
	}
	if c.Has(Numbers) {
		names = append(names, "numbers")
	}
	if c.Has(Symbols) {
		names = append(names, "symbols")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// Policy configures what the generator produces
type Policy struct {
	Length  int
	Classes Class
}

// DefaultPolicy returns a 16 character policy with every class enabled
func DefaultPolicy() Policy {
	return Policy{Length: DefaultLength, Classes: AllClasses}
}

// Set enables or disables a class. Lowercase and numbers back each other up:
// turning one off while the other is off turns the other back on.
func (p Policy) Set(class Class, on bool) Policy {
	if on {
		p.Classes |= class
		return p
	}

	p.Classes &^= class
	switch {
	case class.Has(Lowercase) && !p.Classes.Has(Numbers):
		p.Classes |= Numbers
	case class.Has(Numbers) && !p.Classes.Has(Lowercase):
		p.Classes |= Lowercase
	}
	return p
}

// Alphabet concatenates the character sets of the enabled classes
func (p Policy) Alphabet() string {
	var b strings.Builder
	if p.Classes.Has(Lowercase) {
		b.WriteString(lowercaseChars)
	}
	if p.Classes.Has(Uppercase) {
		b.WriteString(uppercaseChars)
	}
	if p.Classes.Has(Numbers) {
		b.WriteString(numberChars)
	}
	if p.Classes.Has(Symbols) {
		b.WriteString(symbolChars)
	}
	return b.String()
}

// Validate checks that the policy can produce a password
func (p Policy) Validate() error {
	if p.Alphabet() == "" {
		return fmt.Errorf("%w: select at least one character type", ErrInvalidPolicy)
	}
	if !p.Classes.Has(Lowercase) && !p.Classes.Has(Numbers) {
		return fmt.Errorf("%w: either lowercase letters or numbers must be selected", ErrInvalidPolicy)
	}
	return nil
}

// ClampLength forces a length into the supported range
func ClampLength(length int) int {
	if length < MinLength {
		return MinLength
	}
	if length > MaxLength {
		return MaxLength
	}
	return length
}

// Generator draws passwords from a random source
type Generator struct {
	random io.Reader
}

// New creates a generator backed by crypto/rand
func New() *Generator {
	return &Generator{random: rand.Reader}
}

// NewWithReader creates a generator reading randomness from r
func NewWithReader(r io.Reader) *Generator {
	return &Generator{random: r}
}

// Generate produces a password of policy.Length characters (clamped to
// MinLength..MaxLength), each drawn uniformly and independently from the
// policy alphabet. Enabled classes are not guaranteed to appear.
func (g *Generator) Generate(policy Policy) (string, error) {
	if err := policy.Validate(); err != nil {
		return "", err
	}

	alphabet := policy.Alphabet()
	length := ClampLength(policy.Length)
	max := big.NewInt(int64(len(alphabet)))

	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(g.random, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}

	return string(out), nil
}

// Generate produces a password with the default crypto/rand generator
func Generate(length int, classes Class) (string, error) {
	return New().Generate(Policy{Length: length, Classes: classes})
}
