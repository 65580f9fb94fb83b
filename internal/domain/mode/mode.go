package mode

import (
	"fmt"
	"strings"
)

// Mode is the ML capability profile of a deployment.
type Mode string

// Deployment mode constants.
const (
	// Lightweight serves keyword retrieval only; no model is loaded.
	Lightweight Mode = "lightweight"
	// Local runs the embedding model in-process.
	Local Mode = "local"
	// Cloud calls a remote embedding endpoint and may fall back to the local model.
	Cloud Mode = "cloud"
)

var aliases = map[string]Mode{
	"lightweight": Lightweight,
	"local":       Local,
	"full-ml":     Local,
	"cloud":       Cloud,
	"cloud-ml":    Cloud,
}

// Parse resolves a configured mode name, accepting the legacy aliases full-ml and cloud-ml.
func Parse(s string) (Mode, error) {
	m, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown mode %q (want lightweight, local or cloud)", s)
	}
	return m, nil
}

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Lightweight || m == Local || m == Cloud
}

// UsesEmbeddings reports whether the mode produces vectors.
func (m Mode) UsesEmbeddings() bool {
	return m == Local || m == Cloud
}
