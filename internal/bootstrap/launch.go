package bootstrap

import (
	"encoding/json"
	"net/url"
	"path/filepath"
	"strings"
)

// Executable kinds.
const (
	ExecutableURI  = "uri"
	ExecutablePath = "path"
)

// Executable references the program the host should spawn: a file URI for a
// cache-resident binary or the verified override path verbatim.
type Executable struct {
	Kind  string `json:"kind" yaml:"kind"`
	Value string `json:"value" yaml:"value"`
}

// DocumentFilter scopes the server to documents by language id and optional
// glob pattern.
type DocumentFilter struct {
	Language string  `json:"language" yaml:"language"`
	Pattern  *string `json:"pattern" yaml:"pattern"`
}

// LaunchDescriptor is everything the host needs to start the server. Every
// field is always present in its JSON form.
type LaunchDescriptor struct {
	Executable       Executable       `json:"executable"`
	Args             []string         `json:"args"`
	DocumentSelector []DocumentFilter `json:"documentSelector"`
	Options          json.RawMessage  `json:"options"`
}

// MarshalJSON keeps nil slices as [] and missing options as null.
func (d LaunchDescriptor) MarshalJSON() ([]byte, error) {
	type plain LaunchDescriptor
	p := plain(d)
	if p.Args == nil {
		p.Args = []string{}
	}
	if p.DocumentSelector == nil {
		p.DocumentSelector = []DocumentFilter{}
	}
	if len(p.Options) == 0 {
		p.Options = json.RawMessage("null")
	}
	return json.Marshal(p)
}

// Request is the host-supplied configuration for one resolution.
type Request struct {
	// ServerPath is an explicit executable that bypasses acquisition.
	ServerPath string
	// LanguageID overrides the configured language id when non-empty.
	LanguageID string
	// Pattern overrides the configured document glob when non-empty.
	Pattern string
	// Options is forwarded to the server untouched.
	Options json.RawMessage
}

// PathToURI converts an absolute filesystem path to a file:// URI.
func PathToURI(path string) string {
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		// Windows drive paths need a leading slash: file:///C:/...
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p}
	return u.String()
}

// URIToPath converts a file:// URI back to a filesystem path. Anything else
// is returned unchanged.
func URIToPath(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		return strings.TrimPrefix(uri, "file://")
	}
	p := u.Path
	// "/C:/x" -> "C:/x"
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.FromSlash(p)
}

// Path returns the filesystem path of the executable regardless of kind.
func (e Executable) Path() string {
	if e.Kind == ExecutableURI {
		return URIToPath(e.Value)
	}
	return e.Value
}
