package client

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// LedgerService handles per-organization ledger operations.
type LedgerService struct {
	c *Client
}

type listResponse struct {
	Entries []Entry `json:"entries"`
	HasMore bool    `json:"has_more"`
}

// List returns an organization's entries matching opts.
func (s *LedgerService) List(ctx context.Context, orgID string, opts *ListOptions) ([]Entry, bool, error) {
	params := url.Values{}
	if opts != nil {
		setIf(params, "category", opts.Category)
		setIf(params, "severity", opts.Severity)
		setIf(params, "outcome", opts.Outcome)
		setIf(params, "target_type", opts.TargetType)
		setIf(params, "target_id", opts.TargetID)
		setIf(params, "order", opts.Order)
		if opts.Since != nil {
			params.Set("since", opts.Since.Format(time.RFC3339Nano))
		}
		if opts.Until != nil {
			params.Set("until", opts.Until.Format(time.RFC3339Nano))
		}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.Offset > 0 {
			params.Set("offset", strconv.Itoa(opts.Offset))
		}
	}

	var resp listResponse
	if err := s.c.get(ctx, orgPath(orgID, "/ledger"), params, &resp); err != nil {
		return nil, false, err
	}
	return resp.Entries, resp.HasMore, nil
}

// Append writes an explicit entry for orgID.
func (s *LedgerService) Append(ctx context.Context, orgID string, req AppendRequest) (*Entry, error) {
	var entry Entry
	if err := s.c.post(ctx, orgPath(orgID, "/ledger"), req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Verify walks orgID's chain. Nil bounds are open. A broken chain is not an
// error: inspect OK and BrokenAtSeq.
func (s *LedgerService) Verify(ctx context.Context, orgID string, fromSeq, toSeq *int64) (*VerificationResult, error) {
	params := url.Values{}
	if fromSeq != nil {
		params.Set("from_seq", strconv.FormatInt(*fromSeq, 10))
	}
	if toSeq != nil {
		params.Set("to_seq", strconv.FormatInt(*toSeq, 10))
	}

	var res VerificationResult
	if err := s.c.get(ctx, orgPath(orgID, "/ledger/verify"), params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Integrity returns the latest, possibly cached, verification of orgID's chain.
func (s *LedgerService) Integrity(ctx context.Context, orgID string) (*VerificationResult, error) {
	var res VerificationResult
	if err := s.c.get(ctx, orgPath(orgID, "/integrity"), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func setIf(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}
