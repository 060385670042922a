package progress

import (
	errs "feedrelay/pkg/errors"
)

// Recovery returns the action offered with a fatal run error
func Recovery(kind errs.ErrorType) string {
	switch kind {
	case errs.ErrorTypeWrongPage, errs.ErrorTypeNavigation:
		return "Open your profile, choose \"Activity\" then \"Posts\", and start the sync again from that page."
	case errs.ErrorTypeAuth:
		return "Log in to the feedrelay web app, then start the sync again."
	case errs.ErrorTypeTimeout, errs.ErrorTypeUnreachable:
		return "Reload the activity page and try again."
	case errs.ErrorTypeParsing:
		return "Check feed.item_selector and feed.container_selector with 'feedrelay config validate'."
	case errs.ErrorTypeNetwork, errs.ErrorTypeServerError, errs.ErrorTypeRateLimit:
		return "Check your connection and try again in a few minutes."
	default:
		return "Try again. If the problem persists, restart feedrelay."
	}
}
