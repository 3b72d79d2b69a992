package share

import (
	"strings"
)

// VerifyAbsolute checks that p is an absolute share path without "." or ".."
// segments. The path is returned unchanged; nothing is rewritten.
//
// Used for write and delete targets where implicit traversal is not allowed.
func VerifyAbsolute(p string) (string, error) {
	if p == "" || p[0] != '/' {
		return "", NewPathError("verify", p, ErrInvalidPath)
	}
	if p == "/" {
		return p, nil
	}
	for _, seg := range strings.Split(p[1:], "/") {
		if seg == "." || seg == ".." {
			return "", NewPathError("verify", p, ErrInvalidPath)
		}
	}
	return p, nil
}

// NormalizeAbsolute rewrites p into canonical form: "." segments are dropped
// and ".." pops the previous segment. Climbing above "/" fails with
// ErrInvalidPath.
//
// Empty segments (from "//" or a trailing "/") are kept as-is, mirroring
// VerifyAbsolute which does not reject them either.
func NormalizeAbsolute(p string) (string, error) {
	if p == "" || p[0] != '/' {
		return "", NewPathError("normalize", p, ErrInvalidPath)
	}
	if p == "/" {
		return p, nil
	}

	stack := make([]string, 0, strings.Count(p, "/"))
	for _, seg := range strings.Split(p[1:], "/") {
		switch seg {
		case ".":
		case "..":
			if len(stack) == 0 {
				return "", NewPathError("normalize", p, ErrInvalidPath)
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, seg)
		}
	}
	if len(stack) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(stack, "/"), nil
}

// Join appends name segments to an absolute directory path.
func Join(dir string, names ...string) string {
	out := strings.TrimRight(dir, "/")
	for _, n := range names {
		n = strings.Trim(n, "/")
		if n == "" {
			continue
		}
		out += "/" + n
	}
	if out == "" {
		return "/"
	}
	return out
}

// Split returns the non-empty segments of an absolute path.
func Split(p string) []string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// Base returns the last segment of p, or "/" for the root.
func Base(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}
	return p[strings.LastIndex(p, "/")+1:]
}

// Dir returns the parent of p. The parent of "/" is "/".
func Dir(p string) string {
	p = strings.TrimRight(p, "/")
	i := strings.LastIndex(p, "/")
	if i <= 0 {
		return "/"
	}
	return p[:i]
}
