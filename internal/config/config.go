// Package config loads the proxy-function set, cost-format tag, and
// optional external fast-path binary that the Preprocessor and Reader
// consume from outside the core (spec §4.6/§6). Configuration is
// external-collaborator territory: the core never reads a file from
// this package directly, it's given an already-built *Config.
package config

import (
	"fmt"
	"os"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"

	cgerrors "github.com/haltmark/cgprof/internal/errors"
)

// Config holds everything the CLI and core need from outside the trace
// file itself.
type Config struct {
	ProxyFunctions map[string]struct{}
	CostFormat     string
	FastPathBinary string
}

// DefaultConfig returns the configuration used when no file is present:
// no proxies, usec costs, no external fast path.
func DefaultConfig() *Config {
	return &Config{
		ProxyFunctions: map[string]struct{}{},
		CostFormat:     "usec",
	}
}

// Validate rejects a Config whose CostFormat is not one of the three
// recognized tags.
func (c *Config) Validate() error {
	switch c.CostFormat {
	case "percent", "msec", "usec":
		return nil
	default:
		return cgerrors.NewConfigError("cost-format", fmt.Errorf("unrecognized format %q", c.CostFormat))
	}
}

// Load reads a KDL configuration document from path. A missing file is
// not an error — Load returns DefaultConfig(). A present but unparsable
// file returns a *cgerrors.ConfigError wrapping the parse failure.
//
// Expected shape:
//
//	proxy-functions {
//	    - "call_user_func"
//	    - "call_user_func_array"
//	}
//	cost-format "percent"
//	fast-path "/usr/local/bin/cgprof-native"
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, cgerrors.NewConfigError(path, err)
	}

	doc, err := kdl.Parse(strings.NewReader(string(content)))
	if err != nil {
		return nil, cgerrors.NewConfigError(path, err)
	}

	cfg := DefaultConfig()
	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "proxy-functions":
			for _, name := range collectStringArgs(n) {
				cfg.ProxyFunctions[name] = struct{}{}
			}
		case "cost-format":
			if s, ok := firstStringArg(n); ok {
				cfg.CostFormat = s
			}
		case "fast-path":
			if s, ok := firstStringArg(n); ok {
				cfg.FastPathBinary = s
			}
		}
	}

	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

// collectStringArgs reads a node's string list either from inline
// arguments ("proxy-functions \"a\" \"b\"") or from KDL's "- value"
// block-list children, mirroring the two shapes KDL allows for lists.
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 && len(n.Children) > 0 {
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
				continue
			}
			if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
