package handlers

import (
	"github.com/alekspetrov/claudehub/internal/dispatch"
)

type registration struct {
	provider dispatch.ProviderKind
	handler  dispatch.Handler
}

// registrations lists the handlers in registration order. Within a
// bucket the first matching handler wins, so manual-review must precede
// mention.
func registrations(deps Deps) []registration {
	return []registration{
		{dispatch.ProviderSlack, NewPlanHandler(deps)},
		{dispatch.ProviderSlack, NewBugHandler(deps)},
		{dispatch.ProviderSlack, NewTestHandler(deps)},
		{dispatch.ProviderGitHub, NewAutoTagHandler(deps)},
		{dispatch.ProviderGitHub, NewPRReviewHandler(deps)},
		{dispatch.ProviderGitHub, NewManualReviewHandler(deps)},
		{dispatch.ProviderGitHub, NewMentionHandler(deps)},
	}
}

// Register adds every handler to reg. Providers must be registered first.
func Register(reg *dispatch.Registry, deps Deps) error {
	for _, r := range registrations(deps) {
		if err := reg.RegisterHandler(r.provider, r.handler); err != nil {
			return err
		}
	}
	return nil
}
