// Package domain defines the MCP tools exposed by the ruleset engine.
package domain

import (
	stderrors "errors"
	"fmt"

	apperrors "github.com/louisbranch/wfrp3e/internal/platform/errors"
	"github.com/louisbranch/wfrp3e/internal/platform/errors/i18n"
)

// toolError renders domain errors through the catalog so warnings reach the
// client as readable notifications. Other errors are wrapped with op.
func toolError(cat *i18n.Catalog, op string, err error) error {
	var domainErr *apperrors.Error
	if !stderrors.As(err, &domainErr) {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	if cat == nil {
		cat = i18n.GetCatalog(i18n.BaseLocale)
	}
	text := cat.Format(string(domainErr.Code), domainErr.Metadata)
	if apperrors.IsWarning(err) {
		return fmt.Errorf("warning %s: %s", domainErr.Code, text)
	}
	return fmt.Errorf("%s: %s", domainErr.Code, text)
}
