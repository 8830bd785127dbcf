// Package bgg is the upstream gateway over the BoardGameGeek XML API2.
//
// FetchBatch reads full thing records with statistics for up to BatchSize
// ids in one call; Collection lists the base games a user owns. BGG answers
// 202 while it prepares a response and 429 when rate limited, so both are
// retried with exponential backoff together with 5xx responses.
package bgg
