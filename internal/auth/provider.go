package auth

import (
	"bytes"
	"os"
	"path/filepath"
)

const tokenFilename = "token"

// CredentialProvider supplies the bearer credential for the upload API.
// Authentication happens outside this process; the provider only answers
// whether a session currently exists.
type CredentialProvider interface {
	IsAuthenticated() bool
	Token() (string, bool)
}

// FileProvider reads the token from <data-dir>/token on every call, so a
// session restored by the host application is picked up at the next
// scheduling pass without any signalling.
type FileProvider struct {
	path string
}

var _ CredentialProvider = (*FileProvider)(nil)

func NewFileProvider(dataDir string) *FileProvider {
	return &FileProvider{path: filepath.Join(dataDir, tokenFilename)}
}

func (p *FileProvider) IsAuthenticated() bool {
	_, ok := p.Token()
	return ok
}

func (p *FileProvider) Token() (string, bool) {
	content, err := os.ReadFile(p.path)
	if err != nil {
		return "", false
	}
	token := string(bytes.TrimSpace(content))
	if token == "" {
		return "", false
	}
	return token, true
}

// StaticProvider returns a fixed token. Used by tests.
type StaticProvider struct {
	Bearer string
}

var _ CredentialProvider = (*StaticProvider)(nil)

func (p *StaticProvider) IsAuthenticated() bool {
	return p.Bearer != ""
}

func (p *StaticProvider) Token() (string, bool) {
	return p.Bearer, p.Bearer != ""
}
