// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// FetcherOptions configures a remote rulepack fetcher.
type FetcherOptions struct {
	// Timeout bounds one fetch attempt including retries.
	Timeout time.Duration

	// RetryCount is the number of retries after the first attempt.
	RetryCount int

	// Logger receives fetch diagnostics. Must not be nil.
	Logger *slog.Logger
}

// DefaultFetcherOptions returns the options used when none are given.
func DefaultFetcherOptions() FetcherOptions {
	return FetcherOptions{
		Timeout:    30 * time.Second,
		RetryCount: 2,
		Logger:     slog.Default(),
	}
}

// FetcherOption mutates FetcherOptions.
type FetcherOption func(*FetcherOptions)

// WithTimeout sets the per-fetch timeout.
func WithTimeout(d time.Duration) FetcherOption {
	return func(o *FetcherOptions) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// WithRetryCount sets the retry count.
func WithRetryCount(n int) FetcherOption {
	return func(o *FetcherOptions) {
		if n >= 0 {
			o.RetryCount = n
		}
	}
}

// WithFetchLogger sets the logger.
func WithFetchLogger(logger *slog.Logger) FetcherOption {
	return func(o *FetcherOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// Fetcher downloads rulepacks over HTTPS.
//
// Thread Safety: safe for concurrent use; the underlying client pools
// connections.
type Fetcher struct {
	client *resty.Client
	logger *slog.Logger
}

// NewFetcher creates a rulepack fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	options := DefaultFetcherOptions()
	for _, opt := range opts {
		opt(&options)
	}
	client := resty.New().
		SetTimeout(options.Timeout).
		SetRetryCount(options.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)
	return &Fetcher{client: client, logger: options.Logger}
}

// Fetch downloads and validates a rulepack.
//
// Description:
//
//	Issues a GET for the rulepack YAML and runs it through the same
//	validation as a local file. A rulepack that fails its manifest gate
//	or entry validation is rejected; the caller keeps whatever bundle it
//	was already using.
//
// Inputs:
//
//	ctx - Context for cancellation and deadline. Must not be nil.
//	url - The rulepack URL. Must not be empty.
//
// Outputs:
//
//	*Bundle - The validated rulepack.
//	error - Non-nil on transport, status or validation failure.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Bundle, error) {
	if url == "" {
		return nil, fmt.Errorf("rulepack url must not be empty")
	}

	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetching rulepack %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetching rulepack %s: status %d", url, resp.StatusCode())
	}

	bundle, err := Parse(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("rulepack %s: %w", url, err)
	}

	srcs, sinks, sans := bundle.Counts()
	f.logger.Info("rulepack fetched",
		slog.String("url", url),
		slog.String("name", bundle.manifest.Name),
		slog.String("version", bundle.manifest.Version),
		slog.Int("sources", srcs),
		slog.Int("sinks", sinks),
		slog.Int("sanitizers", sans),
	)
	return bundle, nil
}
