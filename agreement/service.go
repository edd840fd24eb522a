package agreement

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotFound is returned when no agreement exists for the identifier.
	ErrNotFound = errors.New("agreement: not found")
	// ErrSenderOnly signals a Sent request from someone other than the sender.
	ErrSenderOnly = errors.New("agreement: only sender can send agreement")
	// ErrSignerOnly signals a Signed request from someone other than the designated signer.
	ErrSignerOnly = errors.New("agreement: only designated signer can sign")
	// ErrAccessDenied signals the caller is not a party to the agreement.
	ErrAccessDenied = errors.New("agreement: unauthorized access to this agreement")
)

// ValidationError reports malformed create input together with the
// offending field name so the API layer can surface it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("agreement: %s: %s", e.Field, e.Message)
}

// DB abstracts pgxpool.Pool for testability.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository defines the data access required by the service. Methods that
// take a pgx.Tx participate in the caller's transaction.
type Repository interface {
	Insert(ctx context.Context, tx pgx.Tx, params InsertParams) (Agreement, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Agreement, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, status Status, signerID *string) (Agreement, error)
	AppendAudit(ctx context.Context, db Execer, agreementID int64, action, performedBy string) error
	Find(ctx context.Context, id int64) (Agreement, error)
	ListForUser(ctx context.Context, userID, email string) ([]Agreement, error)
	ListAudit(ctx context.Context, agreementID int64) ([]AuditEntry, error)
}

// Execer is the subset of pgx.Tx / pgxpool.Pool audit writes need.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PerformerDirectory resolves audit performers to display identities.
// Implementations report found=false for users they cannot resolve; the
// service renders those as a placeholder instead of failing the listing.
type PerformerDirectory interface {
	Lookup(ctx context.Context, userID string) (Performer, bool)
}

// Service is the agreement lifecycle engine. It owns the status state
// machine, the per-operation authorization predicates, and the audit trail
// written as a side effect of every significant action. It keeps no state
// between calls; everything durable lives behind Repository.
type Service struct {
	db         DB
	repo       Repository
	performers PerformerDirectory
}

// NewService wires the lifecycle engine.
func NewService(db DB, repo Repository, performers PerformerDirectory) *Service {
	return &Service{
		db:         db,
		repo:       repo,
		performers: performers,
	}
}

// Create persists a new Draft agreement owned by the actor and records the
// "Created" audit entry in the same transaction.
func (s *Service) Create(ctx context.Context, actor Actor, params CreateParams) (Agreement, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return Agreement{}, &ValidationError{Field: "title", Message: "title is required"}
	}
	if params.FileURL == "" {
		return Agreement{}, &ValidationError{Field: "file", Message: "no file uploaded"}
	}
	signerEmail := strings.TrimSpace(params.SignerEmail)
	if signerEmail != "" {
		if _, err := mail.ParseAddress(signerEmail); err != nil {
			return Agreement{}, &ValidationError{Field: "signerEmail", Message: "malformed signer email"}
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.repo.Insert(ctx, tx, InsertParams{
		Title:       title,
		FileURL:     params.FileURL,
		SignerEmail: signerEmail,
		SenderID:    actor.ID,
	})
	if err != nil {
		return Agreement{}, err
	}

	if err := s.repo.AppendAudit(ctx, tx, created.ID, ActionCreated, actor.ID); err != nil {
		return Agreement{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Agreement{}, fmt.Errorf("agreement: commit create: %w", err)
	}

	return created, nil
}

// RequestTransition applies the transition table to the requested status.
// The agreement row stays locked for the whole read-check-write sequence,
// so concurrent transitions against one agreement serialize: with two
// simultaneous eligible sign requests, exactly one binds the signer first
// and the other is evaluated against the bound value.
//
// A requested status outside the table leaves the agreement and audit log
// untouched and returns the current row.
func (s *Service) RequestTransition(ctx context.Context, actor Actor, id int64, target Status) (Agreement, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return Agreement{}, err
	}

	rule, ok := transitions[target]
	if !ok {
		return current, nil
	}

	if err := rule.authorize(current, actor); err != nil {
		return Agreement{}, err
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, id, target, rule.bindSigner(current, actor))
	if err != nil {
		return Agreement{}, err
	}

	if err := s.repo.AppendAudit(ctx, tx, id, rule.action, actor.ID); err != nil {
		return Agreement{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Agreement{}, fmt.Errorf("agreement: commit transition: %w", err)
	}

	return updated, nil
}

// Get returns the agreement when the actor is a party to it. Every
// successful read appends one "Viewed" audit entry, repeated views
// included.
func (s *Service) Get(ctx context.Context, actor Actor, id int64) (Agreement, error) {
	found, err := s.repo.Find(ctx, id)
	if err != nil {
		return Agreement{}, err
	}

	if !canView(found, actor) {
		return Agreement{}, ErrAccessDenied
	}

	if err := s.repo.AppendAudit(ctx, s.db, found.ID, ActionViewed, actor.ID); err != nil {
		return Agreement{}, err
	}

	return found, nil
}

// ListForUser returns the agreements the actor participates in, as sender,
// bound signer, or invited signer by email. Each agreement appears once
// even when the actor matches on several grounds; newest first.
func (s *Service) ListForUser(ctx context.Context, actor Actor) ([]Agreement, error) {
	return s.repo.ListForUser(ctx, actor.ID, actor.Email)
}

// AuditTrail returns the agreement's audit entries newest-first, each
// enriched with the performer's display identity. Performers that cannot be
// resolved render as "Unknown" rather than failing the listing.
func (s *Service) AuditTrail(ctx context.Context, id int64) ([]EnrichedAuditEntry, error) {
	if _, err := s.repo.Find(ctx, id); err != nil {
		return nil, err
	}

	entries, err := s.repo.ListAudit(ctx, id)
	if err != nil {
		return nil, err
	}

	performers, err := s.resolvePerformers(ctx, entries)
	if err != nil {
		return nil, err
	}

	enriched := make([]EnrichedAuditEntry, 0, len(entries))
	for _, entry := range entries {
		enriched = append(enriched, EnrichedAuditEntry{
			AuditEntry: entry,
			Performer:  performers[entry.PerformedBy],
		})
	}
	return enriched, nil
}

// resolvePerformers looks up each distinct performer once, concurrently.
func (s *Service) resolvePerformers(ctx context.Context, entries []AuditEntry) (map[string]Performer, error) {
	ids := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if _, dup := seen[entry.PerformedBy]; dup {
			continue
		}
		seen[entry.PerformedBy] = struct{}{}
		ids = append(ids, entry.PerformedBy)
	}

	resolved := make([]Performer, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			performer, found := s.performers.Lookup(gctx, id)
			if !found {
				performer = Performer{FirstName: "Unknown"}
			}
			resolved[i] = performer
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("agreement: resolve performers: %w", err)
	}

	performers := make(map[string]Performer, len(ids))
	for i, id := range ids {
		performers[id] = resolved[i]
	}
	return performers, nil
}
