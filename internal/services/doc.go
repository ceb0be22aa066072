// Package services defines the external collaborators of the import pipeline and implements them over HTTP.
//
// # Source
//
// A [SourceCollector] turns a shared album link into a title and an ordered list of media references.
// [HTMLCollector] is a generic implementation that reads OpenGraph tags, the page title and
// img/video/source/a elements with goquery. It does not know any site-specific markup.
//
// Media bytes are fetched through a [Fetcher]; [HTTPFetcher] throttles requests with a token bucket.
//
// # Target
//
// A [TargetClient] authenticates against the target service, finds or creates albums,
// uploads assets and links them to albums. [ImmichClient] implements it for Immich:
//   - API keys are sent in the x-api-key header
//   - Access tokens go through an [oauth2.StaticTokenSource] transport as bearer tokens
//   - Uploads stream a multipart body through an [io.Pipe]; the file is never buffered in memory
//
// # Error Handling
//
// HTTP failures are returned as [shared.Error] values whose kind comes from [shared.KindFromStatus];
// transport failures are [shared.KindNetworkTransient].
package services
