// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpclient builds the outbound HTTP client shared by the
// completion providers, HTTP tool servers and the remote health check.
//
// The client layers two transports over a pooled base transport:
//
//   - a logging transport that sets User-Agent, forwards the caller's
//     X-Request-ID and logs each exchange with secrets redacted from the URL
//   - a retry transport that retries idempotent requests on 5xx, 408, 429
//     and transient network errors, honoring Retry-After
//
// POST requests are not retried here. Completion calls are retried one
// level up by llm.RetryableProvider, which knows which failures are safe
// to repeat.
//
//	client, err := httpclient.New(httpclient.DefaultConfig())
package httpclient
