package main

import (
	"context"
	"errors"
	"fmt"

	"signflow/agreement"
	"signflow/auth"
	"signflow/config"
	"signflow/db"
	"signflow/filestore"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	log := cfg.NewLogger()

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("bootstrap database pool")
	}
	defer pool.Close()

	uploads, err := filestore.New(cfg.UploadDir)
	if err != nil {
		log.WithError(err).Fatal("bootstrap file store")
	}

	authService := auth.NewService(auth.NewRepository(pool), cfg.JWTSecret)
	agreementService := agreement.NewService(
		pool,
		agreement.NewRepository(pool),
		&performerDirectory{users: authService, log: log},
	)

	server := NewServer(log, agreementService, authService, uploads)

	addr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.WithField("addr", addr).Info("starting server")
	if err := server.Router().Run(addr); err != nil {
		log.WithError(err).Fatal("server error")
	}
}

// performerDirectory adapts the auth service to audit enrichment. Lookup
// failures degrade to a placeholder performer instead of failing the audit
// listing, so unexpected errors are logged here.
type performerDirectory struct {
	users *auth.Service
	log   *logrus.Logger
}

func (d *performerDirectory) Lookup(ctx context.Context, userID string) (agreement.Performer, bool) {
	user, err := d.users.GetUserByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, auth.ErrUserNotFound) {
			d.log.WithError(err).WithField("user_id", userID).Warn("resolve audit performer")
		}
		return agreement.Performer{}, false
	}
	return agreement.Performer{
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
	}, true
}
