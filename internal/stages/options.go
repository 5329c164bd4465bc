// Package stages binds the pipeline's collaborators (SEO research, content
// generation, site building, deployment) to the workflow's stage executor
// contract. Each stage reads its own section of the project preferences into
// a typed options struct; unknown keys are rejected at parse time rather
// than silently ignored.
package stages

import (
	"bytes"
	"encoding/json"
	"fmt"

	perrors "github.com/blogsmith/blogsmith/internal/errors"
)

// decodeOptions fills out from the named preferences section. A missing
// section leaves out at its defaults; an unknown field fails with the
// offending key named.
func decodeOptions(prefs map[string]any, section string, out any) error {
	raw, ok := prefs[section]
	if !ok || raw == nil {
		return nil
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %s options: %v", perrors.ErrInvalidInput, section, err)
	}
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %s options: %v", perrors.ErrInvalidInput, section, err)
	}
	return nil
}
