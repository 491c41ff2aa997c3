// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It acts as an adapter between external clients
// and the task store and prediction proxy.
//
// Successful responses are wrapped as {"data": ...}. Errors are
// {"message": ...}, with a redacted "error" detail on server errors.
package api
