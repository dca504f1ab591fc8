// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, org)
//	httputil.WriteForbidden(w, "permission denied")
//	httputil.WriteInternalError(w, r, err)
//
// Every error body has the shape {"error": "...", "details": {...}}.
//
// # Request Parsing
//
//	var req CreateOrganizationRequest
//	if !httputil.DecodeAndValidate(w, r, &req) {
//		return // 400 already written
//	}
//
// DecodeAndValidate rejects unknown fields and runs go-playground/validator
// struct tags, reporting failures per field in details.
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.CORSMiddleware(cfg.Server.AllowedOrigins),
//	)(router)
//
// # Related Packages
//
//   - pkg/middleware: Session and permission middleware
package httputil
