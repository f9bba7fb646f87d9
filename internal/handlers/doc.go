// Package handlers provides the HTTP API of the thumbnail service.
//
// It includes handlers for:
//   - Surfaces: mounting a video reference, reporting its visibility,
//     reading its view model and poster, and unmounting it
//   - The thumbnail cache: lookups, invalidation and usage
//   - Health, readiness, version and Prometheus metrics
package handlers
