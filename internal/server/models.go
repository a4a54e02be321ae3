package server

import "github.com/voyatech/ticketcheck/models"

// HTTPError is the uniform error body.
type HTTPError struct {
	Error string `json:"error"`
}

// ValidateResponse maps a pipeline result onto the public JSON shape.
type ValidateResponse struct {
	IsValid             bool                   `json:"is_valid"`
	Errors              []string               `json:"errors"`
	ExtractedInfo       models.ExtractedTicket `json:"extracted_info"`
	FlightVerified      *bool                  `json:"flight_verified,omitempty"`
	VerificationDetails map[string]interface{} `json:"verification_details,omitempty"`
	VerificationError   string                 `json:"verification_error,omitempty"`
}

func toValidateResponse(res models.PipelineResult) ValidateResponse {
	return ValidateResponse{
		IsValid:             res.Validation.IsValid,
		Errors:              res.Validation.Errors,
		ExtractedInfo:       res.Ticket,
		FlightVerified:      res.Verification.Verified,
		VerificationDetails: res.Verification.Details,
		VerificationError:   res.Verification.Error,
	}
}

// MessageResponse is used by administrative endpoints.
type MessageResponse struct {
	Message string `json:"message"`
}
