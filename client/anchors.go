package client

import (
	"context"
	"net/url"
	"strconv"
)

// AnchorService handles root checkpoints.
type AnchorService struct {
	c *Client
}

// Checkpoint asks the server to anchor every settled entry not yet covered by a root.
func (s *AnchorService) Checkpoint(ctx context.Context) (*CheckpointResult, error) {
	var res CheckpointResult
	if err := s.c.post(ctx, "/api/v1/ledger/checkpoints", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// List returns roots overlapping [fromSeq, toSeq]. Zero bounds are open.
func (s *AnchorService) List(ctx context.Context, fromSeq, toSeq int64, limit int) ([]Root, error) {
	params := url.Values{}
	if fromSeq > 0 {
		params.Set("from_seq", strconv.FormatInt(fromSeq, 10))
	}
	if toSeq > 0 {
		params.Set("to_seq", strconv.FormatInt(toSeq, 10))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var resp struct {
		Roots []Root `json:"roots"`
	}
	if err := s.c.get(ctx, "/api/v1/ledger/roots", params, &resp); err != nil {
		return nil, err
	}
	return resp.Roots, nil
}

// Verify recomputes root id from its window and compares it with the stored hash.
func (s *AnchorService) Verify(ctx context.Context, id int64) (*RootVerification, error) {
	var res RootVerification
	if err := s.c.get(ctx, "/api/v1/ledger/roots/"+strconv.FormatInt(id, 10)+"/verify", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
