package store

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Key is the canonical identity of a remote repository: lowercase host plus
// cleaned path, with credentials, port, and a trailing ".git" stripped. Two
// URLs addressing the same upstream canonicalize to the same Key. Local
// filesystem remotes use the pseudo-host "local".
type Key string

const localHost = "local"

// ParseKey canonicalizes a remote URL into a Key. Accepted forms are
// scheme URLs (https, ssh, git, file), scp-like "user@host:path", and plain
// filesystem paths.
func ParseKey(rawURL string) (Key, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", errors.New("empty repository URL")
	}
	if !strings.Contains(raw, "://") {
		if host, rest, ok := splitSCPLike(raw); ok {
			return keyFrom(host, rest)
		}
		abs, err := filepath.Abs(raw)
		if err != nil {
			return "", fmt.Errorf("resolve path %q: %w", rawURL, err)
		}
		return keyFrom(localHost, filepath.ToSlash(abs))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Scheme == "file" {
		return keyFrom(localHost, u.Path)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return keyFrom(host, u.Path)
}

// splitSCPLike recognizes "user@host:path" remotes. The colon must come
// before any slash, otherwise the string is a filesystem path containing
// an @.
func splitSCPLike(raw string) (host, rest string, ok bool) {
	at := strings.Index(raw, "@")
	if at < 0 {
		return "", "", false
	}
	tail := raw[at+1:]
	colon := strings.Index(tail, ":")
	if colon <= 0 || strings.Contains(tail[:colon], "/") {
		return "", "", false
	}
	return strings.ToLower(tail[:colon]), tail[colon+1:], true
}

func keyFrom(host, p string) (Key, error) {
	p = path.Clean("/" + filepath.ToSlash(p))
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, ".git")
	p = strings.TrimSuffix(p, "/")
	if p == "" || p == "." {
		return "", fmt.Errorf("repository path %q is empty after canonicalization", p)
	}
	return Key(host + "/" + p), nil
}

func (k Key) String() string { return string(k) }

// Host returns the canonical host component.
func (k Key) Host() string {
	host, _, _ := strings.Cut(string(k), "/")
	return host
}

// Base returns the last path segment, the conventional link name for the
// repository.
func (k Key) Base() string { return path.Base(string(k)) }

// RelPath returns the key as a filesystem-relative path under the store
// root.
func (k Key) RelPath() string { return filepath.FromSlash(string(k)) }
