// Package util provides shared error types and validation helpers.
//
// # Error Types
//
// The kernel reports every failure through one of five kinds:
//
//   - InvalidArgumentError: missing or malformed call parameters
//   - InvalidSignError: absent key material or signature mismatch
//   - BusinessError: non-success gateway code with sub_code/sub_msg
//   - NetworkError: transport failure, wrapping the cause
//   - RuntimeError: malformed response shape or missing collaborator
//
// Each kind matches its sentinel with errors.Is:
//
//	if errors.Is(err, util.ErrInvalidSign) { ... }
//
// # Validation
//
// Input validation helpers for configuration values:
//
//	err := util.ValidateURL("https://openapi.alipay.com/gateway.do")
//	err := util.ValidateNonEmpty(appID, "app_id")
package util
