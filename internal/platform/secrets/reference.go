package secrets

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// reference is a parsed secret://name?version=N&project=P. The legacy sm:// scheme is rewritten
// to secret:// before parsing.
type reference struct {
	// canonical drops the query so every version of a secret shares one identity.
	canonical string
	name      string
	version   string
	project   string
}

func parseReference(raw string) (reference, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	if rest, ok := strings.CutPrefix(value, "sm://"); ok {
		value = "secret://" + rest
	}
	u, err := url.Parse(value)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference: %w", err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, errors.New("secrets: reference has no secret name")
	}
	query := u.Query()
	return reference{
		canonical: "secret://" + name,
		name:      name,
		version:   strings.TrimSpace(query.Get("version")),
		project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

// resource is the Secret Manager version path for the reference in projectID.
func (r reference) resource(projectID string) string {
	version := r.version
	if version == "" {
		version = "latest"
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", projectID, r.name, version)
}

func (r reference) cacheKey() string {
	return r.canonical + "#" + r.version
}

// masked is a stable digest safe for logs and metric attributes.
func (r reference) masked() string {
	sum := sha256.Sum256([]byte(r.canonical))
	return hex.EncodeToString(sum[:8])
}
