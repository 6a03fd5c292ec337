package otpAuth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrEthical07/otpAuth/delivery"
	"github.com/MrEthical07/otpAuth/internal/rate"
)

const maxTargetLength = 254

// RequestCode issues a fresh one-time code for (target, channel) and delivers
// it through the configured sender. Any previously active code for the pair
// is superseded in the same atomic step, so only the newest code can ever
// validate. Issuance is rate limited per (target, channel); when the budget
// is exhausted the call fails with [ErrRateLimited] and nothing is issued.
//
// RequestCode may return an error when input validation, dependency calls, or security checks fail.
// RequestCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RequestCode(ctx context.Context, target string, channel Channel) error {
	if err := e.ready(); err != nil {
		return err
	}

	target, err := normalizeTarget(target, channel)
	if err != nil {
		return err
	}

	sender := e.senderFor(channel)
	if sender == nil {
		return fmt.Errorf("%w: no sender configured for %s", ErrInvalidChannel, channel)
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.rateLimiter.Allow(opCtx, target, string(channel)); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricCodeRateLimited)
			e.emitAudit(ctx, auditEventCodeRateLimited, false, 0, target, channel, "", ErrRateLimited, nil)
			return ErrRateLimited
		}
		e.metricInc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	id, record, err := e.codeStore.Issue(opCtx, target, string(channel), e.config.Codes.Digits)
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := sender.Send(ctx, target, record.Code()); err != nil {
		e.metricInc(MetricDeliveryFailure)
		e.emitAudit(ctx, auditEventCodeDeliveryFailed, false, 0, target, channel, "", ErrDeliveryFailed, func() map[string]string {
			return map[string]string{"code_id": strconv.FormatInt(id, 10)}
		})
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	e.metricInc(MetricCodeIssued)
	e.emitAudit(ctx, auditEventCodeRequested, true, 0, target, channel, "", nil, func() map[string]string {
		return map[string]string{"code_id": strconv.FormatInt(id, 10)}
	})

	return nil
}

func (e *Engine) senderFor(channel Channel) delivery.Sender {
	switch channel {
	case ChannelEmail:
		return e.emailSender
	case ChannelPhone:
		return e.smsSender
	default:
		return nil
	}
}

// normalizeTarget canonicalizes the contact target so rate limiting and the
// single-active-code invariant cannot be sidestepped with cosmetic variants.
func normalizeTarget(target string, channel Channel) (string, error) {
	if !channel.Valid() {
		return "", ErrInvalidChannel
	}

	target = strings.TrimSpace(target)
	if target == "" || len(target) > maxTargetLength {
		return "", ErrInvalidTarget
	}

	switch channel {
	case ChannelEmail:
		at := strings.IndexByte(target, '@')
		if at <= 0 || at == len(target)-1 || strings.ContainsAny(target, " \t\r\n") {
			return "", ErrInvalidTarget
		}
		return strings.ToLower(target), nil
	case ChannelPhone:
		normalized := strings.Map(func(r rune) rune {
			switch r {
			case ' ', '-', '(', ')':
				return -1
			}
			return r
		}, target)
		digits := strings.TrimPrefix(normalized, "+")
		if len(digits) < 7 || len(digits) > 15 {
			return "", ErrInvalidTarget
		}
		for _, r := range digits {
			if r < '0' || r > '9' {
				return "", ErrInvalidTarget
			}
		}
		return normalized, nil
	}

	return "", ErrInvalidChannel
}
