package gateway

import (
	"fmt"
	"net/mail"
	"path"
	"regexp"
	"strings"
)

var separators = regexp.MustCompile(`[^A-Za-z0-9]+`)

// FolderName maps s to a filesystem-safe fragment: runs of non-alphanumeric
// characters collapse to a single '_'.
func FolderName(s string) string {
	return strings.Trim(separators.ReplaceAllString(s, "_"), "_")
}

// HomeFor derives the user's home folder under root from the local part of email.
func HomeFor(root, email string) (string, error) {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", newError(CodeInvalidInput, fmt.Sprintf("invalid email address %q", email), err)
	}
	local, _, _ := strings.Cut(addr.Address, "@")
	name := FolderName(local)
	if name == "" {
		return "", newError(CodeInvalidInput, fmt.Sprintf("email %q yields an empty folder name", email), nil)
	}
	return path.Join(root, name), nil
}

// SafeFilename reduces name to one path element inside a job folder.
func SafeFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "/\\\x00") || name == "." || name == ".." {
		return "", newError(CodeInvalidInput, fmt.Sprintf("invalid filename %q", name), nil)
	}
	return path.Base(name), nil
}
