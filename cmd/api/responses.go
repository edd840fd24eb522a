package main

import (
	"time"

	"signflow/agreement"
	"signflow/auth"
)

// Wire shapes follow the frontend contract: camelCase fields, RFC 3339
// timestamps, null for unset signer attributes.

type agreementResponse struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	FileURL     string  `json:"fileUrl"`
	Status      string  `json:"status"`
	SenderID    string  `json:"senderId"`
	SignerID    *string `json:"signerId"`
	SignerEmail *string `json:"signerEmail"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

func agreementResponseFrom(a agreement.Agreement) agreementResponse {
	return agreementResponse{
		ID:          a.ID,
		Title:       a.Title,
		FileURL:     a.FileURL,
		Status:      string(a.Status),
		SenderID:    a.SenderID,
		SignerID:    a.SignerID,
		SignerEmail: a.SignerEmail,
		CreatedAt:   a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type performerResponse struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

type auditEntryResponse struct {
	ID          int64             `json:"id"`
	AgreementID int64             `json:"agreementId"`
	Action      string            `json:"action"`
	PerformedBy string            `json:"performedBy"`
	Timestamp   string            `json:"timestamp"`
	User        performerResponse `json:"user"`
}

func auditEntryResponseFrom(e agreement.EnrichedAuditEntry) auditEntryResponse {
	return auditEntryResponse{
		ID:          e.ID,
		AgreementID: e.AgreementID,
		Action:      e.Action,
		PerformedBy: e.PerformedBy,
		Timestamp:   e.CreatedAt.UTC().Format(time.RFC3339),
		User: performerResponse{
			FirstName: e.Performer.FirstName,
			LastName:  e.Performer.LastName,
			Email:     e.Performer.Email,
		},
	}
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	CreatedAt string `json:"createdAt"`
}

func userResponseFrom(u auth.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func loginResponseFrom(r auth.LoginResult) loginResponse {
	return loginResponse{
		Token: r.Token,
		User:  userResponseFrom(r.User),
	}
}
