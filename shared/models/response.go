package models

// ErrorResponse is the JSON body of every failed HTTP request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DataResponse wraps list payloads returned by the HTTP surface.
type DataResponse struct {
	Data interface{} `json:"data"`
}
