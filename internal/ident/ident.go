// Package ident mints prefixed, URL-safe entity identifiers.
//
// Identifiers are a short family prefix followed by random characters drawn
// from a 64-symbol alphabet. Randomness comes from crypto/rand unless the
// generator was built with an explicit insecure fallback policy.
package ident

import (
	"crypto/rand"
	"io"
	mrand "math/rand/v2"
	"strings"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/siteerr"
)

// Alphabet is the URL-safe symbol set ids are drawn from.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

// mask is the smallest 2^n-1 covering the alphabet; bytes above len(Alphabet)
// are rejected so every symbol is equally likely.
const mask = 63

// Options configures a Generator.
type Options struct {
	// Reader supplies random bytes. Defaults to crypto/rand.Reader.
	Reader io.Reader

	// AllowInsecureFallback permits math/rand when Reader fails.
	// Decided once by the caller, never read from the environment here.
	AllowInsecureFallback bool
}

// Generator mints identifiers. Safe for concurrent use when its Reader is.
type Generator struct {
	reader        io.Reader
	allowInsecure bool
}

func NewGenerator(opts Options) *Generator {
	r := opts.Reader
	if r == nil {
		r = rand.Reader
	}
	return &Generator{reader: r, allowInsecure: opts.AllowInsecureFallback}
}

// Gen returns size random alphabet characters.
func (g *Generator) Gen(size int) (string, error) {
	if size <= 0 {
		return "", siteerr.Newf(siteerr.CodeInternal, "identifier size must be positive, got %d", size)
	}
	out, err := g.secure(size)
	if err == nil {
		return out, nil
	}
	if !g.allowInsecure {
		return "", siteerr.Wrap(err, siteerr.CodeInternal, "secure random source unavailable")
	}
	return insecure(size), nil
}

func (g *Generator) secure(size int) (string, error) {
	var b strings.Builder
	b.Grow(size)
	// oversample so most ids need one read
	buf := make([]byte, size+size/2+1)
	for b.Len() < size {
		if _, err := io.ReadFull(g.reader, buf); err != nil {
			return "", err
		}
		for _, c := range buf {
			c &= mask
			if int(c) >= len(Alphabet) {
				continue
			}
			b.WriteByte(Alphabet[c])
			if b.Len() == size {
				break
			}
		}
	}
	return b.String(), nil
}

func insecure(size int) string {
	b := make([]byte, size)
	for i := range b {
		b[i] = Alphabet[mrand.IntN(len(Alphabet))]
	}
	return string(b)
}

// Family fixes the prefix and random length for one entity kind.
type Family struct {
	Prefix string
	Size   int
}

var (
	Page  = Family{Prefix: "pg_", Size: 12}
	Menu  = Family{Prefix: "mn_", Size: 10}
	Block = Family{Prefix: "bk_", Size: 10}
	List  = Family{Prefix: "ls_", Size: 10}
	Site  = Family{Prefix: "st_", Size: 12}
)

// New mints an id in family f.
func (g *Generator) New(f Family) (string, error) {
	s, err := g.Gen(f.Size)
	if err != nil {
		return "", err
	}
	return f.Prefix + s, nil
}

// Is reports whether id belongs to f: prefix, exact length and alphabet.
func (f Family) Is(id string) bool {
	if !strings.HasPrefix(id, f.Prefix) || len(id) != len(f.Prefix)+f.Size {
		return false
	}
	for i := len(f.Prefix); i < len(id); i++ {
		if strings.IndexByte(Alphabet, id[i]) < 0 {
			return false
		}
	}
	return true
}

// HasPrefix is the cheap prefix-only membership test.
func (f Family) HasPrefix(id string) bool {
	return strings.HasPrefix(id, f.Prefix)
}
