// Package harvester fetches source material over HTTP. Starting from one
// locator it extracts a title and body text from each page, follows the
// page's next-chapter link, and stops at a configured item ceiling. Requests
// pass through a token-bucket rate limiter so harvesting stays polite.
package harvester
