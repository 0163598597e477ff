package oauth

import (
	"fmt"

	"session-marketplace/internal/model"
)

// Provider error codes that mean the user backed out.
const (
	CodePopupClosed  = "popup_closed"
	CodeAccessDenied = "access_denied"
)

// CodeTimeout means the provider never redirected back in time.
const CodeTimeout = "timeout"

type ProviderError struct {
	Provider    string
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s sign-in failed: %s (%s)", e.Provider, e.Code, e.Description)
	}
	return fmt.Sprintf("%s sign-in failed: %s", e.Provider, e.Code)
}

// Is lets errors.Is(err, model.ErrProviderCancelled) match user cancellation.
func (e *ProviderError) Is(target error) bool {
	return target == model.ErrProviderCancelled && e.Cancelled()
}

func (e *ProviderError) Cancelled() bool {
	return e.Code == CodePopupClosed || e.Code == CodeAccessDenied
}

func outcomeError(provider string, outcome Outcome) error {
	switch {
	case outcome.TimedOut:
		return &ProviderError{Provider: provider, Code: CodeTimeout, Description: "the browser never returned to the redirect page"}
	case outcome.Cancelled:
		return &ProviderError{Provider: provider, Code: CodePopupClosed}
	case outcome.Error != "":
		return &ProviderError{Provider: provider, Code: outcome.Error, Description: outcome.ErrorDescription}
	default:
		return nil
	}
}
