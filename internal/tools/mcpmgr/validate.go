// Package mcpmgr manages external MCP server processes: lifecycle state
// transitions, restart-on-crash backoff, health checks, and channel-scoped
// inactivity shutdown (spec §4.4, external tool providers).
package mcpmgr

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mxf-project/mxf/pkg/models"
)

// dangerousShellPatterns flags command-injection-prone substrings in
// stdio server args, grounded on the teacher's
// internal/mcp/types.go:containsShellMetachars.
var dangerousShellPatterns = []string{
	"$(", "${", "`", "&&", "||", ";", "|", ">", "<", "\n", "\r",
}

func containsShellMetachars(s string) bool {
	for _, p := range dangerousShellPatterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func validatePath(path, field string) error {
	if path == "" {
		return nil
	}
	if strings.Contains(filepath.Clean(path), "..") {
		return fmt.Errorf("%s contains path traversal: %q", field, path)
	}
	return nil
}

// ValidateServerConfig rejects stdio/http configurations with obvious
// command-injection or path-traversal risk before the server is ever
// started, mirroring ServerConfig.Validate in the teacher's
// internal/mcp/types.go.
func ValidateServerConfig(srv *models.ExternalMCPServer) error {
	if srv.ID == "" {
		return fmt.Errorf("server ID is required")
	}

	switch srv.Transport {
	case models.MCPTransportStdio:
		if srv.Command == "" {
			return fmt.Errorf("command is required for stdio server %s", srv.ID)
		}
		if err := validatePath(srv.Command, "command"); err != nil {
			return err
		}
		for i, arg := range srv.Args {
			if containsShellMetachars(arg) {
				return fmt.Errorf("server %s arg[%d] contains suspicious shell metacharacters: %q", srv.ID, i, arg)
			}
		}
	case models.MCPTransportHTTP:
		if srv.URL == "" {
			return fmt.Errorf("URL is required for http server %s", srv.ID)
		}
		if !strings.HasPrefix(srv.URL, "http://") && !strings.HasPrefix(srv.URL, "https://") {
			return fmt.Errorf("server %s URL must start with http:// or https://", srv.ID)
		}
	default:
		return fmt.Errorf("server %s has unknown transport %q", srv.ID, srv.Transport)
	}
	return nil
}
