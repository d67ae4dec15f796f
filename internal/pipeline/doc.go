// Package pipeline loads guests in the background.
//
// A Pipeline chains the transport fetcher, the codec and the sandbox loader.
// A Worker runs pipelines on their own goroutines, bounded by a semaphore and
// a start-rate limiter, and posts every outcome to the lifecycle inbox tagged
// with the generation issued at Submit.
package pipeline
