// Package config loads and watches the rezoningwatch configuration file.
//
// Top-level sections:
//   - upstream: projects API base URL, page size, token page URL and JSON path,
//     HTTP timeout, user agent, tls.insecure_skip_verify
//   - retry: attempts and delay shared by token and page fetches
//   - cache: page_ttl and token_ttl for the response cache
//   - token: expiry_skew applied before a stored token is considered stale
//   - storage: path of the bbolt snapshot file
//   - schedule: interval between runs in watch mode
//   - notify: webhooks [{type, url_env}], fail_on_error, max_attempts
//   - metrics: textfile path and listen address
//   - log: level and format
//
// Load(path) reads the YAML file over Default(), then validates. A missing
// file is not an error for the CLI, which falls back to Default().
//
// Watch(ctx, path, onChange) reloads the file through fsnotify and hands
// each valid Config to onChange.
package config
