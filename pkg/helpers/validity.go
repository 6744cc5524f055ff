package helpers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Infisical/infisical-sub034/pkg/errs"
)

// ParseTTLToDays converts a TTL string of the form <n>d, <n>h or <n>m into
// whole days. Hours and minutes round up to the next day.
func ParseTTLToDays(ttl string) (int, error) {
	if len(ttl) < 2 {
		return 0, fmt.Errorf("%w: invalid TTL %q", errs.ErrValidateBadRequest, ttl)
	}

	unit := ttl[len(ttl)-1]
	value, err := strconv.Atoi(ttl[:len(ttl)-1])
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%w: invalid TTL %q", errs.ErrValidateBadRequest, ttl)
	}

	switch unit {
	case 'd':
		return value, nil
	case 'h':
		return (value + 23) / 24, nil
	case 'm':
		return (value + 24*60 - 1) / (24 * 60), nil
	default:
		return 0, fmt.Errorf("%w: invalid TTL unit %q", errs.ErrValidateBadRequest, ttl)
	}
}

// ResolveValidityDays picks the certificate validity in whole days. An
// explicit notBefore/notAfter range wins, then an explicit notAfter against
// now, then the profile TTL.
func ResolveValidityDays(notBefore, notAfter *time.Time, ttl string, now time.Time) (int, error) {
	const day = 24 * time.Hour

	if notBefore != nil && notAfter != nil {
		if !notAfter.After(*notBefore) {
			return 0, fmt.Errorf("%w: notAfter must be after notBefore", errs.ErrValidateBadRequest)
		}
		days := int(notAfter.Sub(*notBefore) / day)
		if days < 1 {
			days = 1
		}
		return days, nil
	}

	if notAfter != nil {
		if !notAfter.After(now) {
			return 0, fmt.Errorf("%w: notAfter must be in the future", errs.ErrValidateBadRequest)
		}
		days := int(notAfter.Sub(now) / day)
		if days < 1 {
			days = 1
		}
		return days, nil
	}

	return ParseTTLToDays(ttl)
}

// CalculateRenewBeforeDays computes the stored renew-before-days for a newly
// issued certificate. Returns nil when the profile does not auto-renew. A
// configured value that equals or exceeds the certificate's own validity is
// clamped to validityDays-1, floored at one day.
func CalculateRenewBeforeDays(autoRenew bool, renewBeforeDays int, validityDays int) *int {
	if !autoRenew {
		return nil
	}

	final := renewBeforeDays
	if final <= 0 {
		final = 1
	}

	if final >= validityDays {
		final = validityDays - 1
		if final < 1 {
			final = 1
		}
	}

	return &final
}
